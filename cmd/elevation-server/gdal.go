//go:build gdal

package main

import (
	"github.com/spf13/viper"

	"github.com/twpayne/go-elevation-lookup"
	"github.com/twpayne/go-elevation-lookup/gdal"
)

func init() {
	transformerFactory = gdal.Transformers{}
	rasterOpener = func(*viper.Viper) (elevation.RasterOpener, error) {
		return gdal.Open, nil
	}
}
