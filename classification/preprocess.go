package classification

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"runtime"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/Tutortoise/defect-classification-service/models"
)

// Tensor is a dense float32 batch ready to be copied into a session input.
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Preprocess decodes image bytes and turns them into a batch-of-one tensor
// scaled to [-1, 1] in the layout spec describes. timings may be nil.
func Preprocess(data []byte, spec InputSpec, timings *models.ProcessingTimings) (*Tensor, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	decodeStart := time.Now()
	img, err := decodeImage(data)
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return nil, newError(KindDecode, "preprocess.decode", err)
	}

	resizeStart := time.Now()
	resized := imaging.Resize(img, spec.Size.Width, spec.Size.Height, imaging.CatmullRom)
	timings.Resize = time.Since(resizeStart)
	if b := resized.Bounds(); b.Dx() != spec.Size.Width || b.Dy() != spec.Size.Height {
		return nil, newError(KindDecode, "preprocess.resize",
			fmt.Errorf("cannot resize %dx%d image to %dx%d", img.Bounds().Dx(), img.Bounds().Dy(), spec.Size.Width, spec.Size.Height))
	}

	prepStart := time.Now()
	tensor := &Tensor{
		Shape: spec.Shape(),
		Data:  make([]float32, spec.Elements()),
	}
	fillParallel(resized, spec, tensor.Data)
	timings.Preprocess = time.Since(prepStart)

	return tensor, nil
}

func decodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot identify image file: empty upload")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot identify image file: %w", err)
	}
	return img, nil
}

// scalePixel maps an 8-bit intensity from [0, 255] to [-1, 1], the input
// range of Inception-family models.
func scalePixel(v uint8) float32 {
	return float32(v)/127.5 - 1
}

// fillParallel splits rows across workers. Every element is written by
// exactly one worker, so the result does not depend on scheduling.
func fillParallel(img *image.NRGBA, spec InputSpec, buffer []float32) {
	width, height := spec.Size.Width, spec.Size.Height
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = height
	}
	if numWorkers < 1 {
		numWorkers = 1
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = height
		}

		go func(start, end int) {
			defer wg.Done()
			fillRows(img, spec.Layout, width, height, start, end, buffer)
		}(startRow, endRow)
	}

	wg.Wait()
}

func fillRows(img *image.NRGBA, layout Layout, width, height, start, end int, buffer []float32) {
	channelSize := width * height
	for y := start; y < end; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < width; x++ {
			// Alpha is dropped, not composited.
			r, g, b := row[x*4], row[x*4+1], row[x*4+2]
			if layout == NCHW {
				i := y*width + x
				buffer[i] = scalePixel(r)
				buffer[channelSize+i] = scalePixel(g)
				buffer[channelSize*2+i] = scalePixel(b)
				continue
			}
			i := (y*width + x) * Channels
			buffer[i] = scalePixel(r)
			buffer[i+1] = scalePixel(g)
			buffer[i+2] = scalePixel(b)
		}
	}
}
