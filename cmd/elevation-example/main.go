package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/twpayne/go-elevation-lookup"
)

func run() error {
	srs := flag.String("s", "WGS84", "query SRS")
	flag.Parse()

	if flag.NArg() < 3 {
		return errors.New("syntax: elevation-example x y path...")
	}
	x, err := strconv.ParseFloat(flag.Arg(0), 64)
	if err != nil {
		return err
	}
	y, err := strconv.ParseFloat(flag.Arg(1), 64)
	if err != nil {
		return err
	}

	registry, err := elevation.NewRegistry(flag.Args()[2:], *srs)
	if err != nil {
		return err
	}
	defer registry.Close()
	if registry.IsEmpty() {
		return errors.New("no tiles loaded")
	}

	altitude, ok := registry.Altitude(context.Background(), x, y)
	if !ok {
		fmt.Println("null")
		return nil
	}
	fmt.Println(altitude)

	return nil
}

func main() {
	if err := run(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
