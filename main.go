package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"
	"github.com/valyala/fasthttp"

	"github.com/funny-falcon/slotpool/alloc"
	"github.com/funny-falcon/slotpool/pool"
)

func main() {
	log.SetFlags(log.Lmicroseconds | log.Lshortfile)
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "slotd",
		Usage: "lease fixed-size slots from a lock-free pool",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "YAML config file",
				EnvVars: []string{envVarPrefix + "_CONFIG_FILE"},
			},
		},
		Commands: []*cli.Command{{
			Name:  "serve",
			Usage: "serve acquire/release over HTTP",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "addr", Usage: "listen address"},
			},
			Action: withPool(func(p *pool.Pool, cfg *Config, ctx *cli.Context) error {
				if ctx.IsSet("addr") {
					cfg.Addr = ctx.String("addr")
				}
				srv := &Server{Pool: p}
				log.Printf("serving %d slots of %s on %s", p.Cap(),
					humanize.IBytes(uint64(p.SlotSize())), cfg.Addr)
				return fasthttp.ListenAndServe(cfg.Addr, srv.Handler)
			}),
		}, {
			Name:  "bench",
			Usage: "run a concurrent acquire/release workload and check exclusivity",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "threads", Value: 8},
				&cli.IntFlag{Name: "rounds", Value: 25},
			},
			Action: withPool(func(p *pool.Pool, cfg *Config, ctx *cli.Context) error {
				res, err := RunBench(p, ctx.Int("threads"), ctx.Int("rounds"))
				if res != nil {
					fmt.Fprintf(ctx.App.Writer,
						"threads=%d rounds=%d per-round=%d acquired=%s elapsed=%s ops/s=%s round median=%.0fus p99=%.0fus\n",
						res.Threads, res.Rounds, res.PerRound, humanize.Comma(int64(res.Acquired)),
						res.Elapsed, humanize.Commaf(res.OpsPerSec()), res.Median, res.P99)
				}
				return err
			}),
		}},
	}
}

func withPool(f func(*pool.Pool, *Config, *cli.Context) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := LoadConfig(ctx.String("config"))
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		p, closer, err := buildPool(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()
		return f(p, cfg, ctx)
	}
}

// buildPool places the pool in an anonymous mapping, or on the heap when
// Mmap is off.
func buildPool(cfg *Config) (*pool.Pool, io.Closer, error) {
	slotSize, err := cfg.SlotBytes()
	if err != nil {
		return nil, nil, err
	}
	if !cfg.Mmap {
		p, err := pool.Make(cfg.Slots, slotSize)
		if err != nil {
			return nil, nil, err
		}
		return p, nopCloser{}, nil
	}
	size, ok := pool.Size(cfg.Slots, slotSize)
	if !ok {
		return nil, nil, pool.ErrOverflow
	}
	r, err := alloc.Map(int(size))
	if err != nil {
		return nil, nil, err
	}
	p, err := pool.New(r.Bytes(), cfg.Slots, slotSize)
	if err != nil {
		r.Close()
		return nil, nil, err
	}
	return p, r, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
