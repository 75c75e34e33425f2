package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/adas/pkg/nn"
	"github.com/cyclopcam/adas/server/config"
	"github.com/cyclopcam/adas/server/pipeline"
	"github.com/cyclopcam/adas/server/source"
	"github.com/cyclopcam/logs"
)

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("adasreplay", "Run recorded detection and segmentation outputs through the ADAS postprocessor")
	input := parser.String("i", "input", &argparse.Options{Help: "Recorded frames (a stream of JSON objects)", Required: true})
	output := parser.File("o", "output", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0664, &argparse.Options{Help: "Output results file", Required: true})
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file. Defaults are used for anything it omits.", Required: false, Default: ""})
	model := parser.String("m", "model", &argparse.Options{Help: "Model config file, which overrides the model section of the config", Required: false, Default: ""})
	indent := parser.Flag("", "indent", &argparse.Options{Help: "Indent the JSON output"})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	check(err)

	cfg := config.DefaultConfig()
	if *configFile != "" {
		cfg, err = config.LoadConfig(*configFile)
		check(err)
	}
	if *model != "" {
		modelCfg, err := nn.LoadModelConfig(*model)
		check(err)
		cfg.Model = *modelCfg
		cfg.Lane.Width = modelCfg.SegWidth
		cfg.Lane.Height = modelCfg.SegHeight
	}

	p, err := pipeline.NewPipeline(logger, cfg)
	check(err)

	src, err := source.OpenFileSource(*input)
	check(err)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	w := bufio.NewWriter(output)
	encoder := json.NewEncoder(w)
	if *indent {
		encoder.SetIndent("", "  ")
	}
	stats, err := source.Run(ctx, src, p, func(res *pipeline.FrameResult) error {
		return encoder.Encode(res)
	})
	if err != nil {
		logger.Errorf("Replay stopped: %v", err)
		p.Finish()
	}
	check(src.Close())
	check(w.Flush())
	check(output.Close())
	logger.Infof("Processed %v frames, %v tracks alive at end", stats.Frames, stats.Tracks)
}
