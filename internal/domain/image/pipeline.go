package image

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"

	"golang.org/x/image/draw"

	"foodcal-server-go/internal/platform/config"
	"foodcal-server-go/internal/platform/errors"
	"foodcal-server-go/internal/platform/logging"
)

const defaultJPEGQuality = 90

// Store persists normalised artifacts under unique names.
type Store interface {
	Save(ctx context.Context, data []byte, ext string) (string, error)
	Remove(path string) error
}

// Pipeline turns raw upload bytes into a normalised RGB JPEG artifact.
type Pipeline struct {
	validator    *SecurityValidator
	logger       *logging.Logger
	store        Store
	quality      int
	maxDimension int
}

// Options configures the pipeline behaviour.
type Options struct {
	Security     config.SecurityConfig
	Logger       *logging.Logger
	Store        Store
	JPEGQuality  int
	MaxDimension int
}

func NewPipeline(opts Options) (*Pipeline, error) {
	if opts.Store == nil {
		return nil, errors.New(errors.KindConfig, "image.new_pipeline", "artifact store is required")
	}
	quality := opts.JPEGQuality
	if quality <= 0 || quality > 100 {
		quality = defaultJPEGQuality
	}

	return &Pipeline{
		validator:    NewSecurityValidator(opts.Security, opts.Logger),
		logger:       opts.Logger,
		store:        opts.Store,
		quality:      quality,
		maxDimension: opts.MaxDimension,
	}, nil
}

// ProcessBase64 decodes payload and runs it through Process.
func (p *Pipeline) ProcessBase64(ctx context.Context, payload string) (*Artifact, error) {
	raw, err := DecodeBase64(payload)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, raw)
}

// Process validates raw, converts it to 3-channel RGB and persists it as JPEG.
func (p *Pipeline) Process(ctx context.Context, raw []byte) (*Artifact, error) {
	validation := p.validator.ValidateBytes(raw)
	if !validation.IsValid {
		return nil, errors.Wrap(errors.KindImage, "image.validate", "image validation failed", validation.Error)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, errors.Wrap(errors.KindImage, "image.decode", "decode image", err)
	}

	rgb := Downscale(Flatten(src), p.maxDimension)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgb, &jpeg.Options{Quality: p.quality}); err != nil {
		return nil, errors.Wrap(errors.KindImage, "image.encode", "encode jpeg", err)
	}

	path, err := p.store.Save(ctx, buf.Bytes(), ".jpg")
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "image.persist", "persist artifact", err)
	}

	bounds := rgb.Bounds()
	p.logger.DebugTag("图像", "artifact saved: path=%s source=%s %dx%d -> %dx%d",
		path, validation.Format, validation.Width, validation.Height, bounds.Dx(), bounds.Dy())

	return &Artifact{
		Path:         path,
		MIMEType:     "image/jpeg",
		SourceFormat: validation.Format,
		Width:        bounds.Dx(),
		Height:       bounds.Dy(),
		Size:         int64(buf.Len()),
	}, nil
}

// Release removes the artifact from disk.
func (p *Pipeline) Release(a *Artifact) error {
	if a == nil {
		return nil
	}
	return p.store.Remove(a.Path)
}

// Flatten draws src onto an opaque white canvas, dropping alpha and any
// non-RGB colour model (gray, palette, CMYK, YCbCr).
func Flatten(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

// Downscale shrinks img so its longest edge is at most maxDimension.
// A non-positive maxDimension disables scaling.
func Downscale(img *image.RGBA, maxDimension int) *image.RGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxDimension <= 0 || (w <= maxDimension && h <= maxDimension) {
		return img
	}

	nw, nh := maxDimension, maxDimension
	if w >= h {
		nh = max(1, h*maxDimension/w)
	} else {
		nw = max(1, w*maxDimension/h)
	}

	dst := image.NewRGBA(image.Rect(0, 0, nw, nh))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}
