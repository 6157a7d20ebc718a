package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	sgscore "github.com/saugns/sgscore-go"
)

func main() {
	var (
		sampleRate = flag.Int("r", 44100, "output sample rate")
		outPath    = flag.String("o", "", "WAV output path")
		inline     = flag.String("e", "", "inline script text")
		device     = flag.Bool("device", false, "also play on the platform audio device")
		verbose    = flag.Bool("v", false, "log diagnostics to stderr")
	)
	flag.Parse()

	text, name, err := resolveInput(*inline, flag.Args())
	if err != nil {
		log.Fatal(err)
	}

	prog, diags, err := sgscore.Compile(name, text)
	if err != nil {
		log.Fatal(err)
	}
	if *verbose {
		for _, d := range diags {
			fmt.Fprintf(os.Stderr, "%s:%d:%d: %s\n", name, d.Line, d.Col, d.Message)
		}
	}

	if *outPath == "" && !*device {
		log.Fatal("sgscore: nothing to do, specify -o <wav> and/or -device")
	}

	r := sgscore.NewRenderer(sgscore.WithSampleRate(*sampleRate))
	ctx := context.Background()

	if *outPath != "" {
		if err := r.RenderToWAVFile(ctx, prog, *outPath); err != nil {
			log.Fatal(err)
		}
	}
	if *device {
		if err := r.RenderToDevice(ctx, prog); err != nil {
			log.Fatal(err)
		}
	}
}

func resolveInput(inline string, args []string) (text, name string, err error) {
	if strings.TrimSpace(inline) != "" {
		return inline, "inline", nil
	}
	if len(args) == 0 {
		return "", "", fmt.Errorf("sgscore: expected a script path or -e <inline>")
	}
	path := args[0]
	data, err := os.ReadFile(path)
	if err != nil {
		return "", "", err
	}
	return string(data), path, nil
}
