package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"

	"github.com/alitto/pond"
	"github.com/urfave/cli/v2"

	ushow "github.com/sixy6e/go-ushow"
	"github.com/sixy6e/go-ushow/search"
)

// dataset bundles everything an opened store set provides.
type dataset struct {
	files *ushow.Fileset
	mesh  *ushow.Mesh
	vars  *ushow.VariableSet
}

// open_dataset opens the given URIs as a fileset, builds the mesh from
// the first store and scans the displayable variables.
func open_dataset(uris []string, sep_mesh_uri string) (*dataset, error) {
	files, err := ushow.OpenFileset(uris)
	if err != nil {
		return nil, err
	}

	mesh, err := files.Stores[0].CreateMesh(sep_mesh_uri)
	if err != nil {
		files.Close()
		return nil, err
	}

	vars, err := files.ScanVariables(mesh)
	if err != nil {
		files.Close()
		return nil, err
	}

	return &dataset{files: files, mesh: mesh, vars: vars}, nil
}

// resolve_uris expands a directory URI into its dataset files via the
// VFS trawler; explicit file URIs pass straight through.
func resolve_uris(cCtx *cli.Context) []string {
	uris := cCtx.StringSlice("uri")
	if len(uris) == 1 {
		if info, err := os.Stat(uris[0]); err == nil && info.IsDir() {
			if kind, err := ushow.DetectStoreKind(uris[0]); err != nil || kind != ushow.STORE_ZARR {
				found := search.FindStores(uris[0], cCtx.String("config-uri"), cCtx.String("kind"))
				if len(found) > 0 {
					return found
				}
			}
		}
	}
	return uris
}

// dataset_info collates and exports the metadata of a dataset.
func dataset_info(cCtx *cli.Context) error {
	uris := resolve_uris(cCtx)

	log.Println("Opening dataset;", len(uris), "store(s)")
	ds, err := open_dataset(uris, cCtx.String("mesh-uri"))
	if err != nil {
		return err
	}
	defer ds.files.Close()

	info := ushow.BuildDatasetInfo(ds.files, ds.mesh, ds.vars)

	out_uri := cCtx.String("out-uri")
	if out_uri == "" {
		jsn, err := ushow.JsonIndentDumps(info)
		if err != nil {
			return err
		}
		fmt.Println(jsn)
		return nil
	}

	log.Println("Writing dataset info:", out_uri)
	_, err = ushow.WriteJson(out_uri, cCtx.String("config-uri"), info)
	return err
}

// build_view assembles a view over a dataset for one variable.
func build_view(ds *dataset, var_name string, resolution, influence float64, polygon bool, scale int) (*ushow.View, error) {
	v := ds.vars.ByName(var_name)
	if v == nil {
		if ds.vars.Len() == 0 {
			return nil, ushow.ErrNoVariable
		}
		if var_name != "" {
			return nil, errors.Join(ushow.ErrNoVariable, fmt.Errorf("variable %q; have %v", var_name, ds.vars.Names()))
		}
		v = ds.vars.Vars[0]
	}

	var regrid *ushow.Regridder
	var err error
	if !polygon {
		regrid, err = ushow.NewRegridder(ds.mesh, resolution, influence)
		if err != nil {
			return nil, err
		}
	}

	view := ushow.NewView()
	view.Vars = ds.vars
	view.AttachFileset(ds.files)

	if err := view.SetVariable(v, ds.mesh, regrid); err != nil {
		return nil, err
	}

	if polygon {
		view.Mode = ushow.RENDER_POLYGON
		if !ds.mesh.PolygonAvailable() {
			return nil, ushow.ErrPolygonUnavailable
		}
	}

	if scale > 1 {
		view.ZoomDelta(scale - view.Scale_factor)
	}

	return view, nil
}

// render_snapshot renders a single (time, depth) frame to PPM.
func render_snapshot(cCtx *cli.Context) error {
	uris := resolve_uris(cCtx)

	ds, err := open_dataset(uris, cCtx.String("mesh-uri"))
	if err != nil {
		return err
	}
	defer ds.files.Close()

	view, err := build_view(ds, cCtx.String("variable"),
		cCtx.Float64("resolution"), cCtx.Float64("influence"),
		cCtx.Bool("polygon"), cCtx.Int("scale"))
	if err != nil {
		return err
	}

	if name := cCtx.String("colormap"); name != "" {
		for i := 0; i < view.Colormaps.Len(); i++ {
			if view.Colormaps.Current().Name == name {
				break
			}
			view.NextColormap()
		}
	}

	view.SetTime(cCtx.Int("time"))
	view.SetDepth(cCtx.Int("depth"))

	out_uri := cCtx.String("out-uri")
	log.Println("Rendering", cCtx.String("variable"), "->", out_uri)

	return view.SavePpm(out_uri)
}

// animate_frames renders a time range as numbered PPM frames. The
// frame range is split into per-worker chunks; every worker owns its
// own fileset and view, the core itself stays single threaded.
func animate_frames(cCtx *cli.Context) error {
	uris := resolve_uris(cCtx)

	// probe once for the extent and fail early on bad input
	probe, err := open_dataset(uris, cCtx.String("mesh-uri"))
	if err != nil {
		return err
	}
	n_times := probe.files.NTimes()
	probe.files.Close()

	t0 := cCtx.Int("time-start")
	t1 := cCtx.Int("time-end")
	if t1 < 0 || t1 >= n_times {
		t1 = n_times - 1
	}
	if t0 < 0 {
		t0 = 0
	}
	if t0 > t1 {
		return errors.Join(ushow.ErrOutOfRange, fmt.Errorf("frame range [%d, %d]", t0, t1))
	}

	log.Println("Rendering frames", t0, "..", t1)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	n := runtime.NumCPU()
	pool := pond.New(n, 0, pond.MinWorkers(n), pond.Context(ctx))
	defer pool.StopAndWait()

	chunk := (t1 - t0 + n) / n
	if chunk < 1 {
		chunk = 1
	}

	out_prefix := cCtx.String("out-prefix")

	for start := t0; start <= t1; start += chunk {
		lo, hi := start, start+chunk-1
		if hi > t1 {
			hi = t1
		}

		pool.Submit(func() {
			ds, err := open_dataset(uris, cCtx.String("mesh-uri"))
			if err != nil {
				log.Println("frame worker open failed:", err)
				return
			}
			defer ds.files.Close()

			view, err := build_view(ds, cCtx.String("variable"),
				cCtx.Float64("resolution"), cCtx.Float64("influence"),
				cCtx.Bool("polygon"), cCtx.Int("scale"))
			if err != nil {
				log.Println("frame worker view failed:", err)
				return
			}

			view.SetDepth(cCtx.Int("depth"))

			for t := lo; t <= hi; t++ {
				view.SetTime(t)
				out_uri := fmt.Sprintf("%s%05d.ppm", out_prefix, t)
				if err := view.SavePpm(out_uri); err != nil {
					log.Println("frame", t, "failed:", err)
					return
				}
			}
		})
	}

	return nil
}

// timeseries_export extracts one node's values across all times.
func timeseries_export(cCtx *cli.Context) error {
	uris := resolve_uris(cCtx)

	ds, err := open_dataset(uris, cCtx.String("mesh-uri"))
	if err != nil {
		return err
	}
	defer ds.files.Close()

	v := ds.vars.ByName(cCtx.String("variable"))
	if v == nil {
		return errors.Join(ushow.ErrNoVariable, fmt.Errorf("variable %q; have %v", cCtx.String("variable"), ds.vars.Names()))
	}

	series, err := ds.files.ReadTimeseries(v, cCtx.Int("node"), cCtx.Int("depth"))
	if err != nil {
		return err
	}

	// GRIB union axes are absolute days; render a calendar column too
	export := struct {
		Variable  string
		Node      int
		Depth     int
		Times     []float64
		Calendar  []string `json:",omitempty"`
		Values    []float64
		Valid     []bool
	}{
		Variable: v.Name,
		Node:     cCtx.Int("node"),
		Depth:    cCtx.Int("depth"),
		Times:    series.Times,
		Values:   series.Values,
		Valid:    series.Valid,
	}
	if ds.files.Grib_times != nil {
		export.Calendar = make([]string, len(series.Times))
		for i, days := range series.Times {
			export.Calendar[i] = ushow.FormatAbsoluteDays(days)
		}
	}

	out_uri := cCtx.String("out-uri")
	if out_uri == "" {
		jsn, err := ushow.JsonIndentDumps(export)
		if err != nil {
			return err
		}
		fmt.Println(jsn)
		return nil
	}

	_, err = ushow.WriteJson(out_uri, cCtx.String("config-uri"), export)
	return err
}

func common_flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "uri",
			Usage: "URI or pathname to a dataset store; repeat for filesets, or give a directory to trawl.",
		},
		&cli.StringFlag{
			Name:  "config-uri",
			Usage: "URI or pathname to a TileDB config file.",
		},
		&cli.StringFlag{
			Name:  "mesh-uri",
			Usage: "URI or pathname to a separate mesh file (unstructured NetCDF).",
		},
		&cli.StringFlag{
			Name:  "kind",
			Usage: "Restrict directory trawls to one store kind: netcdf, zarr or grib.",
		},
	}
}

func render_flags() []cli.Flag {
	return append(common_flags(),
		&cli.StringFlag{
			Name:  "variable",
			Usage: "Variable name to display.",
		},
		&cli.Float64Flag{
			Name:  "resolution",
			Value: ushow.DEFAULT_RESOLUTION_DEG,
			Usage: "Target raster resolution in degrees.",
		},
		&cli.Float64Flag{
			Name:  "influence",
			Value: ushow.DEFAULT_INFLUENCE_METRES,
			Usage: "Influence radius in metres for the nearest neighbour resampling.",
		},
		&cli.BoolFlag{
			Name:  "polygon",
			Usage: "Render mesh elements instead of interpolating to the raster.",
		},
		&cli.IntFlag{
			Name:  "scale",
			Value: 1,
			Usage: "Integer pixel upscale factor, 1 to 8.",
		},
		&cli.IntFlag{
			Name:  "depth",
			Usage: "Depth index.",
		},
		&cli.StringFlag{
			Name:  "colormap",
			Usage: "Palette name, eg viridis, hot, grayscale.",
		},
	)
}

func main() {
	app := &cli.App{
		Commands: []*cli.Command{
			&cli.Command{
				Name:  "info",
				Flags: append(common_flags(),
					&cli.StringFlag{
						Name:  "out-uri",
						Usage: "URI or pathname to write the dataset info JSON to; stdout when omitted.",
					},
				),
				Action: dataset_info,
			},
			&cli.Command{
				Name: "render",
				Flags: append(render_flags(),
					&cli.IntFlag{
						Name:  "time",
						Usage: "Time index.",
					},
					&cli.StringFlag{
						Name:  "out-uri",
						Value: "snapshot.ppm",
						Usage: "Output PPM pathname.",
					},
				),
				Action: render_snapshot,
			},
			&cli.Command{
				Name: "animate",
				Flags: append(render_flags(),
					&cli.IntFlag{
						Name:  "time-start",
						Usage: "First frame time index.",
					},
					&cli.IntFlag{
						Name:  "time-end",
						Value: -1,
						Usage: "Last frame time index; defaults to the final step.",
					},
					&cli.StringFlag{
						Name:  "out-prefix",
						Value: "frame-",
						Usage: "Output pathname prefix for the numbered PPM frames.",
					},
				),
				Action: animate_frames,
			},
			&cli.Command{
				Name: "timeseries",
				Flags: append(common_flags(),
					&cli.StringFlag{
						Name:  "variable",
						Usage: "Variable name to extract.",
					},
					&cli.IntFlag{
						Name:  "node",
						Usage: "Source node index to extract.",
					},
					&cli.IntFlag{
						Name:  "depth",
						Usage: "Depth index.",
					},
					&cli.StringFlag{
						Name:  "out-uri",
						Usage: "URI or pathname to write the series JSON to; stdout when omitted.",
					},
				),
				Action: timeseries_export,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
