package recognizer

import (
	"bytes"
	"image"
	"image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// thumbnailMaxEdge bounds the longer edge of stored face crops.
const thumbnailMaxEdge = 256

// cropMargin expands the detector's bounding box so the stored crop
// keeps some context around the face.
const cropMargin = 0.2

// cropFace cuts the bounding box out of a decoded frame and re-encodes
// it as JPEG. Frames that do not decode, or boxes that leave no visible
// area, fall back to the full frame.
func cropFace(frame []byte, bbox []float64) []byte {
	if len(frame) == 0 || len(bbox) != 4 {
		return frame
	}
	img, _, err := image.Decode(bytes.NewReader(frame))
	if err != nil {
		return frame
	}

	w := bbox[2] - bbox[0]
	h := bbox[3] - bbox[1]
	rect := image.Rect(
		int(bbox[0]-w*cropMargin),
		int(bbox[1]-h*cropMargin),
		int(bbox[2]+w*cropMargin),
		int(bbox[3]+h*cropMargin),
	).Intersect(img.Bounds())
	if rect.Empty() {
		return frame
	}

	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(cropped, cropped.Bounds(), img, rect.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, cropped, &jpeg.Options{Quality: 85}); err != nil {
		return frame
	}
	return buf.Bytes()
}

// makeThumbnail downscales a face crop so the stored image stays small.
// Images already within bounds, and data that does not decode, are
// returned unchanged.
func makeThumbnail(data []byte) []byte {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width <= thumbnailMaxEdge && height <= thumbnailMaxEdge {
		return data
	}

	newWidth, newHeight := width, height
	if width >= height {
		newWidth = thumbnailMaxEdge
		newHeight = height * thumbnailMaxEdge / width
	} else {
		newHeight = thumbnailMaxEdge
		newWidth = width * thumbnailMaxEdge / height
	}
	if newWidth < 1 {
		newWidth = 1
	}
	if newHeight < 1 {
		newHeight = 1
	}

	resized := image.NewRGBA(image.Rect(0, 0, newWidth, newHeight))
	draw.BiLinear.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: 85}); err != nil {
		return data
	}
	return buf.Bytes()
}
