package main

import (
	"flag"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/xla-labs/waterfall-hub/manifest_manager/input"
	"github.com/xla-labs/waterfall-hub/manifest_manager/output"
	"github.com/xla-labs/waterfall-hub/manifest_manager/remote"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "manifest-generator").Logger()
}

func main() {
	manifestDir := flag.String("manifests", "./manifests", "directory of deployment manifests")
	remoteSrc := flag.String("remote", "", "optional remote manifest source (go-getter syntax)")
	outputPath := flag.String("output", "generated_deployment.toml", "output file (.toml or .json)")
	flag.Parse()

	dir := *manifestDir
	if *remoteSrc != "" {
		tmp, err := os.MkdirTemp("", "waterfall-manifests-*")
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create temp directory")
		}
		defer os.RemoveAll(tmp)

		log.Info().Str("source", *remoteSrc).Msg("Fetching remote manifests")
		if err := remote.ManifestGitDownload(*remoteSrc, tmp); err != nil {
			log.Fatal().Err(err).Msg("Failed to fetch remote manifests")
		}
		dir = tmp
	}

	loader := input.NewLoader()
	manifests, err := loader.LoadAllManifests(dir)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load manifests")
	}
	log.Info().Int("count", len(manifests)).Msg("Manifests loaded")

	valid := true
	for name, m := range manifests {
		if err := input.Validate(m); err != nil {
			log.Error().Str("manifest", name).Err(err).Msg("Validation failed")
			valid = false
		}
	}
	if !valid {
		log.Fatal().Msg("One or more manifests are invalid")
	}

	deployment, err := output.ConvertAll(manifests)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to convert manifests")
	}

	if err := output.Write(*outputPath, deployment); err != nil {
		log.Fatal().Err(err).Msg("Failed to write deployment file")
	}

	log.Info().
		Str("output", *outputPath).
		Int("instances", len(deployment.Instances)).
		Msg("Deployment file generated")
}
