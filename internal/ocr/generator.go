package ocr

import (
	"context"
	"image"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/anpr-parking/internal/imaging"
)

// Input is one image handed to the engine, labelled for logging.
type Input struct {
	Name  string
	Image image.Image
}

// Inputs expands a variant set into the fixed OCR input order: gray,
// contrast, then each binary variant followed by its deskewed copy.
func Inputs(vs *imaging.VariantSet) []Input {
	if vs == nil {
		return nil
	}
	return []Input{
		{"gray", vs.Gray},
		{"contrast", vs.Contrast},
		{"A", vs.A},
		{"A-deskew", imaging.Deskew(vs.A).Image},
		{"B", vs.B},
		{"B-deskew", imaging.Deskew(vs.B).Image},
		{"C", vs.C},
		{"C-deskew", imaging.Deskew(vs.C).Image},
	}
}

// Generator runs an Engine over every input and mode and collects the
// plausible readings.
type Generator struct {
	engine      Engine
	concurrency int
	log         zerolog.Logger
}

// NewGenerator creates a generator. A concurrency of zero or less uses
// the number of CPUs.
func NewGenerator(engine Engine, concurrency int, log zerolog.Logger) *Generator {
	if concurrency <= 0 {
		concurrency = runtime.NumCPU()
	}
	return &Generator{
		engine:      engine,
		concurrency: concurrency,
		log:         log,
	}
}

// Generate returns the candidate multiset for one plate.
//
// Every (input, mode) pair is recognized with the plate whitelist. Readings
// are cleaned of non-alphanumerics and kept only if at least MinPlateLength
// characters remain. Runs execute concurrently but the result preserves
// the (input, mode) order, so the order of discovery is deterministic.
//
// Engine errors are logged and count as an empty reading. The only error
// returned is the context's, when it is cancelled mid-generation.
func (g *Generator) Generate(ctx context.Context, vs *imaging.VariantSet) ([]string, error) {
	inputs := Inputs(vs)
	results := make([]string, len(inputs)*len(Modes))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(g.concurrency)

	for i, in := range inputs {
		if in.Image == nil {
			continue
		}
		for j, mode := range Modes {
			slot := i*len(Modes) + j
			eg.Go(func() error {
				if err := egCtx.Err(); err != nil {
					return err
				}
				text, err := g.engine.ReadText(egCtx, in.Image, mode, PlateWhitelist)
				if err != nil {
					if egCtx.Err() != nil {
						return egCtx.Err()
					}
					g.log.Debug().
						Err(err).
						Str("input", in.Name).
						Str("mode", mode.String()).
						Msg("ocr run failed")
					return nil
				}
				results[slot] = Clean(text)
				return nil
			})
		}
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	candidates := make([]string, 0, len(results))
	for _, text := range results {
		if len(text) >= MinPlateLength {
			candidates = append(candidates, text)
		}
	}
	return candidates, nil
}
