package detector

import (
	"fmt"
	"image"
	"image/color"
	"os"

	"gocv.io/x/gocv"

	"yuributton/internal/logger"
)

const (
	// ScaleFactor is the image pyramid step between detection passes.
	ScaleFactor = 1.1
	// MinNeighbors is how many overlapping candidates a face needs to be kept.
	MinNeighbors = 5
	// MinFaceSize is the smallest face the cascade reports, in pixels.
	MinFaceSize = 24
	// BoxThickness is the outline width of drawn boxes.
	BoxThickness = 2
)

var boxColor = color.RGBA{R: 255, G: 0, B: 0, A: 0}

// Result holds the faces found in one frame. Annotated is a copy of the
// input with one rectangle per entry of Boxes; the caller must Close it.
type Result struct {
	Count     int
	Boxes     []image.Rectangle
	Annotated gocv.Mat
}

// Cascade detects faces with a Haar/LBP cascade classifier loaded once at
// construction.
type Cascade struct {
	classifier gocv.CascadeClassifier
	path       string
	logger     *logger.Logger
}

// New loads the cascade file at path.
func New(path string, logger *logger.Logger) (*Cascade, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("cascade file not found: %s", path)
	}

	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("failed to load cascade: %s", path)
	}

	logger.Info("Face cascade loaded from %s", path)
	return &Cascade{classifier: classifier, path: path, logger: logger}, nil
}

// Detect finds faces in frame and returns them along with an annotated copy.
func (c *Cascade) Detect(frame gocv.Mat) (Result, error) {
	if frame.Empty() {
		return Result{}, fmt.Errorf("frame is empty")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	if err := gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray); err != nil {
		return Result{}, fmt.Errorf("failed to convert image to grayscale: %w", err)
	}
	if err := gocv.EqualizeHist(gray, &gray); err != nil {
		return Result{}, fmt.Errorf("failed to equalize histogram: %w", err)
	}

	faces := c.classifier.DetectMultiScaleWithParams(gray, ScaleFactor, MinNeighbors, 0,
		image.Pt(MinFaceSize, MinFaceSize), image.Pt(0, 0))

	return Annotate(frame, faces)
}

// Annotate clones frame and draws one box per rectangle on the clone.
func Annotate(frame gocv.Mat, boxes []image.Rectangle) (Result, error) {
	annotated := frame.Clone()
	for _, box := range boxes {
		if err := gocv.Rectangle(&annotated, box, boxColor, BoxThickness); err != nil {
			annotated.Close()
			return Result{}, fmt.Errorf("failed to draw rectangle: %w", err)
		}
	}

	return Result{
		Count:     len(boxes),
		Boxes:     boxes,
		Annotated: annotated,
	}, nil
}

// Close releases the classifier.
func (c *Cascade) Close() error {
	return c.classifier.Close()
}
