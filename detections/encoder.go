package detections

import (
	"fmt"
	"image"
	"runtime"
	"sync"
)

// InputTensor is the encoded model input in NHWC order. Exactly one of
// Bytes (quantized) or Floats (float32) is populated.
type InputTensor struct {
	Size      int
	Quantized bool
	Bytes     []uint8
	Floats    []float32
}

// ByteSize is N*N*3*bytesPerChannel.
func (t *InputTensor) ByteSize() int {
	if t.Quantized {
		return len(t.Bytes)
	}
	return len(t.Floats) * 4
}

// Encoder converts N x N images into an InputTensor, reusing the buffer
// while the size and encoding stay the same.
type Encoder struct {
	size       int
	quantized  bool
	numWorkers int
	tensor     *InputTensor
}

func NewEncoder(size int, quantized bool) *Encoder {
	e := &Encoder{numWorkers: runtime.GOMAXPROCS(0)}
	e.reset(size, quantized)
	return e
}

func (e *Encoder) reset(size int, quantized bool) {
	e.size = size
	e.quantized = quantized
	t := &InputTensor{Size: size, Quantized: quantized}
	n := size * size * channels
	if quantized {
		t.Bytes = make([]uint8, n)
	} else {
		t.Floats = make([]float32, n)
	}
	e.tensor = t
}

// Resize reallocates the buffer when size or encoding differ from the current one.
func (e *Encoder) Resize(size int, quantized bool) {
	if size == e.size && quantized == e.quantized {
		return
	}
	e.reset(size, quantized)
}

// Encode overwrites the whole buffer from img and returns it. The returned
// tensor is reused by the next call.
func (e *Encoder) Encode(img image.Image) (*InputTensor, error) {
	b := img.Bounds()
	if b.Dx() != e.size || b.Dy() != e.size {
		return nil, fmt.Errorf("encode: image is %dx%d, model expects %dx%d", b.Dx(), b.Dy(), e.size, e.size)
	}

	if e.size < parallelEncodeMinRows || e.numWorkers < 2 {
		e.encodeRows(img, 0, e.size)
		return e.tensor, nil
	}

	rowsPerWorker := e.size / e.numWorkers
	if rowsPerWorker == 0 {
		rowsPerWorker = 1
	}
	var wg sync.WaitGroup
	for start := 0; start < e.size; start += rowsPerWorker {
		end := start + rowsPerWorker
		if end > e.size || e.size-end < rowsPerWorker {
			end = e.size
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			e.encodeRows(img, start, end)
		}(start, end)
		if end == e.size {
			break
		}
	}
	wg.Wait()

	return e.tensor, nil
}

func (e *Encoder) encodeRows(img image.Image, startRow, endRow int) {
	switch src := img.(type) {
	case *image.NRGBA:
		e.encodePix(src.Pix, src.Stride, src.Rect.Min, img.Bounds().Min, startRow, endRow)
	case *image.RGBA:
		// Opaque frames only; premultiplied alpha is not undone here.
		e.encodePix(src.Pix, src.Stride, src.Rect.Min, img.Bounds().Min, startRow, endRow)
	default:
		e.encodeGeneric(img, startRow, endRow)
	}
}

func (e *Encoder) encodePix(pix []uint8, stride int, rectMin, boundsMin image.Point, startRow, endRow int) {
	x0 := boundsMin.X - rectMin.X
	y0 := boundsMin.Y - rectMin.Y
	for y := startRow; y < endRow; y++ {
		src := pix[(y0+y)*stride+x0*4:]
		dst := y * e.size * channels
		for x := 0; x < e.size; x++ {
			e.put(dst+x*channels, src[x*4], src[x*4+1], src[x*4+2])
		}
	}
}

func (e *Encoder) encodeGeneric(img image.Image, startRow, endRow int) {
	origin := img.Bounds().Min
	for y := startRow; y < endRow; y++ {
		dst := y * e.size * channels
		for x := 0; x < e.size; x++ {
			r, g, b, _ := img.At(origin.X+x, origin.Y+y).RGBA()
			e.put(dst+x*channels, uint8(r>>8), uint8(g>>8), uint8(b>>8))
		}
	}
}

func (e *Encoder) put(i int, r, g, b uint8) {
	if e.quantized {
		e.tensor.Bytes[i] = r
		e.tensor.Bytes[i+1] = g
		e.tensor.Bytes[i+2] = b
		return
	}
	e.tensor.Floats[i] = (float32(r) - imageMean) / imageMean
	e.tensor.Floats[i+1] = (float32(g) - imageMean) / imageMean
	e.tensor.Floats[i+2] = (float32(b) - imageMean) / imageMean
}
