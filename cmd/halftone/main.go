package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/esimov/halftone"
	"github.com/esimov/halftone/pool"
	"github.com/esimov/halftone/reduce"
	"github.com/esimov/halftone/utils"
)

const HelpBanner = `
╦ ╦┌─┐┬  ┌─┐┌┬┐┌─┐┌┐┌┌─┐
╠═╣├─┤│  ├┤  │ │ ││││├┤
╩ ╩┴ ┴┴─┘└   ┴ └─┘┘└┘└─┘

CMYK halftone cell grid generator.
    Version: %s

`

// pipeName is the file name that indicates stdin/stdout is being used.
const pipeName = "-"

// Version indicates the current build version.
var Version string

var (
	// Flags
	source      = flag.String("in", pipeName, "Source image, directory or URL")
	destination = flag.String("out", pipeName, "Destination JSON file or directory")
	cellWidth   = flag.Int("cw", 8, "Cell width in pixels")
	cellHeight  = flag.Int("ch", 8, "Cell height in pixels")
	degK        = flag.Float64("k", 45, "Black screen angle in degrees")
	degC        = flag.Float64("c", 15, "Cyan screen angle in degrees")
	degM        = flag.Float64("m", 75, "Magenta screen angle in degrees")
	degY        = flag.Float64("y", 0, "Yellow screen angle in degrees")
	plates      = flag.String("plates", "k,c,m,y", "Comma separated list of the planes to compute")
	separate    = flag.Bool("separate", false, "Measure ink coverage per plane instead of luminance")
	maxSize     = flag.Int("max", 0, "Downscale sources larger than this size (0 disables)")
	interp      = flag.String("interp", "bilinear", "Rotation interpolator: nearest, approx, bilinear, catmull")
	timeout     = flag.Duration("timeout", 0, "Maximum time spent on one image (0 disables)")
	poolSize    = flag.Int("workers", pool.DefaultSize, "Number of reduction workers")
	workers     = flag.Int("conc", runtime.NumCPU(), "Number of files to process concurrently")
	indent      = flag.Bool("indent", false, "Indent the JSON output")
	debug       = flag.Bool("debug", false, "Log the pipeline stages to stderr")
)

func main() {
	log.SetFlags(0)

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, HelpBanner, Version)
		flag.PrintDefaults()
	}
	flag.Parse()

	if *debug {
		halftone.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	if _, err := halftone.Interpolator(*interp); err != nil {
		flag.Usage()
		log.Fatal(utils.DecorateText(err.Error(), utils.ErrorMessage))
	}
	if *cellWidth <= 0 || *cellHeight <= 0 {
		flag.Usage()
		log.Fatal(utils.DecorateText("\nThe cell width and height should be positive!", utils.ErrorMessage))
	}

	screens, err := selectScreens(*plates)
	if err != nil {
		flag.Usage()
		log.Fatal(utils.DecorateText(err.Error(), utils.ErrorMessage))
	}

	proc := &halftone.Processor{
		CellSize: [2]int{*cellWidth, *cellHeight},
		Screens:  screens,
		Separate: *separate,
		MaxSize:  *maxSize,
		Interp:   *interp,
		Timeout:  *timeout,
		Indent:   *indent,
		Pool:     pool.Init(pool.WithSize(*poolSize)),
	}

	spinnerText := fmt.Sprintf("%s %s",
		utils.DecorateText("◐ HALFTONE", utils.StatusMessage),
		utils.DecorateText("is computing the cell grids...", utils.DefaultMessage))
	spinner := utils.NewSpinner(spinnerText, time.Millisecond*200, true)

	// Capture CTRL-C signal and restore the cursor visibility back.
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalChan
		spinner.RestoreCursor()
		os.Exit(1)
	}()

	failed, processed := false, 0
	op := &halftone.Ops{
		Src:      *source,
		Dst:      *destination,
		PipeName: pipeName,
		Workers:  *workers,
		Status: func(path string, err error) {
			if err != nil {
				failed = true
			}
			processed++
			spinner.SetMessage(fmt.Sprintf("%s %s",
				utils.DecorateText("◐ HALFTONE", utils.StatusMessage),
				utils.DecorateText(fmt.Sprintf("is computing the cell grids... (%d done)", processed), utils.DefaultMessage)))
			printStatus(path, err)
		},
	}

	now := time.Now()
	spinner.Start()
	err = op.Execute(proc)
	spinner.StopMsg = fmt.Sprintf("%s %s\n",
		utils.DecorateText("◐ HALFTONE", utils.StatusMessage),
		utils.DecorateText("is computing the cell grids... ✔", utils.DefaultMessage))
	spinner.Stop()

	if err != nil {
		if !failed {
			printStatus(*source, err)
		}
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "\nExecution time: %s\n",
		utils.DecorateText(utils.FormatTime(time.Since(now)), utils.SuccessMessage))
}

// selectScreens returns the default screens named in the comma separated
// list, with the angles given on the command line.
func selectScreens(list string) ([]halftone.Screen, error) {
	angles := map[reduce.Ink]float64{
		reduce.Black:   *degK,
		reduce.Cyan:    *degC,
		reduce.Magenta: *degM,
		reduce.Yellow:  *degY,
	}
	wanted := make(map[reduce.Ink]bool)
	for _, name := range strings.Split(list, ",") {
		ink, ok := reduce.ParseInk(strings.TrimSpace(name))
		if !ok || ink == reduce.Luminance {
			return nil, fmt.Errorf("unknown plane %q", name)
		}
		wanted[ink] = true
	}

	var screens []halftone.Screen
	for _, sc := range halftone.DefaultScreens() {
		if wanted[sc.Ink] {
			sc.Deg = angles[sc.Ink]
			screens = append(screens, sc)
		}
	}
	return screens, nil
}

// printStatus displays the relevant information about the processed file.
func printStatus(fname string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s%s",
			utils.DecorateText("\nError computing the halftone: ", utils.ErrorMessage),
			utils.DecorateText(fmt.Sprintf("\n\tReason: %v\n", err.Error()), utils.DefaultMessage),
		)
		return
	}
	if fname != pipeName {
		fmt.Fprintf(os.Stderr, "\nThe cell grids have been saved as: %s\n",
			utils.DecorateText(filepath.Base(fname), utils.SuccessMessage),
		)
	}
}
