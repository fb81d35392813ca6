// qlseed seeds a registry with synthetic visits for demos and local
// development.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/obsproc/quicklook/internal/config"
	"github.com/obsproc/quicklook/internal/datastore"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var (
		dsn    = flag.String("dsn", "", "registry DSN (defaults to the configured store)")
		base   = flag.String("collection", "", "base collection (defaults to the configured one)")
		date   = flag.String("date", "", "observation date, YYYY-MM-DD (defaults to today UTC)")
		first  = flag.Int("first", 100, "first visit number")
		count  = flag.Int("count", 3, "number of visits to seed")
		width  = flag.Int("width", 512, "exposure width")
		height = flag.Int("height", 256, "exposure height")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *dsn == "" {
		*dsn = cfg.Store.DSN
	}
	if *dsn == "" {
		log.Fatal("no registry DSN: pass -dsn or set QUICKLOOK_DATASTORE")
	}
	if *base == "" {
		*base = cfg.Store.BaseCollection
	}
	if *date == "" {
		*date = cfg.EffectiveObsDate(time.Now())
	}

	store, err := datastore.OpenSQLite(*dsn)
	if err != nil {
		log.Fatalf("Failed to open registry: %v", err)
	}
	defer store.Close()

	for i := 0; i < *count; i++ {
		visit := datastore.Visit(*first + i)
		if err := seedVisit(ctx, store, *base, visit, *date, *width, *height); err != nil {
			log.Fatalf("Failed to seed visit %d: %v", visit, err)
		}
		fmt.Printf("Seeded visit %d (%s)\n", visit, *date)
	}
}

func seedVisit(ctx context.Context, store *datastore.SQLiteStore, base string, visit datastore.Visit, date string, width, height int) error {
	if err := store.PutVisit(ctx, base, visit, date); err != nil {
		return err
	}

	collection := datastore.CollectionForVisit(base, visit)
	rng := rand.New(rand.NewSource(int64(visit)))

	var fibers []datastore.FiberTarget
	for f := 1; f <= 16; f++ {
		fibers = append(fibers, datastore.FiberTarget{
			FiberID: f,
			Code:    fmt.Sprintf("SSP-%03d", (f-1)/4+1),
		})
	}
	err := store.PutDataset(ctx, &datastore.Dataset{
		Key: datastore.Key{
			Collection: collection,
			Visit:      visit,
			Product:    datastore.ProductVisitConfig,
		},
		Config: &datastore.VisitConfig{Visit: visit, Fibers: fibers},
	})
	if err != nil {
		return err
	}

	// Low-resolution layout: blue, red, near-infrared on every
	// spectrograph. One arm is left out to exercise the missing path.
	for spec := 1; spec <= 4; spec++ {
		for _, arm := range []string{"b", "r", "n"} {
			if spec == 2 && arm == "n" {
				continue
			}
			exposure := syntheticFrame(rng, width, height)
			err := store.PutDataset(ctx, &datastore.Dataset{
				Key: datastore.Key{
					Collection:   collection,
					Visit:        visit,
					Product:      datastore.ProductExposure,
					Spectrograph: spec,
					Arm:          arm,
				},
				Meta:  map[string]string{"exptime": "900"},
				Array: exposure,
			})
			if err != nil {
				return err
			}

			sky := flatFrame(width, height, 80)
			err = store.PutDataset(ctx, &datastore.Dataset{
				Key: datastore.Key{
					Collection:   collection,
					Visit:        visit,
					Product:      datastore.ProductSky,
					Spectrograph: spec,
					Arm:          arm,
				},
				Array: sky,
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// syntheticFrame is sky background plus a few gaussian traces and
// noise, enough to make the display transforms do real work.
func syntheticFrame(rng *rand.Rand, width, height int) *datastore.Array2D {
	pix := make([]float32, width*height)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := 80 + rng.Float64()*10
			for t := 1; t <= 4; t++ {
				center := float64(height*t) / 5
				d := float64(y) - center
				v += 400 * math.Exp(-d*d/18)
			}
			pix[y*width+x] = float32(v)
		}
	}
	return &datastore.Array2D{Width: width, Height: height, Pix: pix}
}

func flatFrame(width, height int, level float32) *datastore.Array2D {
	pix := make([]float32, width*height)
	for i := range pix {
		pix[i] = level
	}
	return &datastore.Array2D{Width: width, Height: height, Pix: pix}
}
