/*
Package halftone splits a bitmap into the four process ink planes of a
CMYK halftone (black, cyan, magenta and yellow) and reduces each of them to
a grid of cell intensities which a painter can turn into dots, lines or any
other mark.

Every plane is sampled through its own rotated screen: the source is
rotated by the screen angle onto an enlarged white canvas, so nothing is
clipped, and the canvas is partitioned into fixed size cells. The per cell
reduction runs on a shared pool of worker units (see the pool package), so
the four planes are computed concurrently.

The package also provides a command line interface which writes the cell
grids as JSON:

	$ halftone --help

In case you wish to integrate the API in a self constructed environment here is a simple example:

	package main

	import (
		"context"
		"fmt"

		"github.com/esimov/halftone"
		"github.com/esimov/halftone/pool"
	)

	func main() {
		h := halftone.New(pool.Default(), halftone.Config{CellSize: [2]int{8, 8}})
		planes, err := h.Render(context.Background(), halftone.NewBitmap(img))
		if err != nil {
			fmt.Printf("Error computing the halftone: %s", err.Error())
		}
		for _, p := range planes {
			fmt.Println(p.Name, p.Size)
		}
	}
*/
package halftone
