package search

import (
	"path/filepath"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// An internal general purpose trawling function. The basename is only
// matched with the pattern, eg ("*.nc", "ocean_temp_1958.nc").
// Directories that are themselves Zarr stores match on their marker
// files and are returned instead of descended into.
func trawl(vfs *tiledb.VFS, patterns []string, uri string, items []string) []string {
	dirs, files, err := vfs.List(uri)
	if err != nil {
		panic(err)
	}

	// check files for a matching pattern
	for _, file := range files {
		for _, pattern := range patterns {
			match, err := filepath.Match(pattern, filepath.Base(file))
			if err != nil {
				panic(err)
			}

			if match {
				items = append(items, file)
				break
			}
		}
	}

	// recurse over every directory, treating zarr stores as leaves
	for _, dir := range dirs {
		if isZarrStore(vfs, dir) {
			for _, pattern := range patterns {
				if pattern == "zarr" {
					items = append(items, dir)
					break
				}
			}
			continue
		}
		items = trawl(vfs, patterns, dir, items)
	}

	return items
}

// isZarrStore reports whether a directory carries Zarr v2 metadata.
func isZarrStore(vfs *tiledb.VFS, uri string) bool {
	for _, marker := range []string{".zgroup", ".zarray", ".zmetadata"} {
		exists, err := vfs.IsFile(uri + "/" + marker)
		if err == nil && exists {
			return true
		}
	}
	return false
}

// patterns per dataset kind keyword
var kindPatterns = map[string][]string{
	"netcdf": {"*.nc", "*.nc4"},
	"grib":   {"*.grib", "*.grib2", "*.grb", "*.grb2"},
	"zarr":   {"zarr"},
	"":       {"*.nc", "*.nc4", "*.grib", "*.grib2", "*.grb", "*.grb2", "zarr"},
}

// FindStores recursively searches a URI for dataset stores of the
// given kind ("netcdf", "grib", "zarr", or "" for all). The function
// uses the TileDB Go bindings to seamlessly search either local
// filesystems or object stores such as AWS-S3. A TileDB config is
// required for searching object stores with permission constraints.
func FindStores(uri string, config_uri string, kind string) []string {
	var (
		config *tiledb.Config
		err    error
		items  []string
	)

	// get a generic config if no path provided
	if config_uri == "" {
		config, err = tiledb.NewConfig()
		if err != nil {
			panic(err)
		}
	} else {
		config, err = tiledb.LoadConfig(config_uri)
		if err != nil {
			panic(err)
		}
	}

	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		panic(err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		panic(err)
	}
	defer vfs.Free()

	patterns, ok := kindPatterns[kind]
	if !ok {
		patterns = kindPatterns[""]
	}

	items = make([]string, 0)
	items = trawl(vfs, patterns, uri, items)

	return items
}
