// This command looks an artist or track up in the music catalog using the
// service's configuration, printing the normalized metadata as JSON. It is
// intended for checking catalog credentials and search behaviour locally.
//
//	lookup artist <name>
//	lookup track <title> <artist>
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/fretlog/fretlog/internal/catalog"
	"github.com/fretlog/fretlog/internal/config"
	"github.com/fretlog/fretlog/internal/metadata"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sethvargo/go-envconfig"
)

type result struct {
	Found  bool `json:"found"`
	Artist any  `json:"artist,omitempty"`
	Track  any  `json:"track,omitempty"`
}

var errUsage = errors.New("usage: lookup artist <name> | lookup track <title> <artist>")

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel)
	zerolog.DefaultContextLogger = &log.Logger

	cfg := config.CatalogConfig{}
	err := envconfig.Process(context.Background(), &cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
		os.Exit(1)
	}

	if err := run(context.Background(), cfg, os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.CatalogConfig, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid catalog configuration: %w", err)
	}

	var decrypter catalog.Decrypter
	if cfg.ClientSecretKMSCiphertext != "" {
		kms, err := catalog.NewKMSDecrypter(ctx)
		if err != nil {
			return err
		}
		decrypter = kms
	}

	secret, err := catalog.ResolveClientSecret(ctx, cfg, decrypter)
	if err != nil {
		return err
	}

	tokens := catalog.NewTokenManager(cfg, secret, http.DefaultClient)
	client := catalog.NewClient(cfg, tokens, http.DefaultTransport)

	res, err := search(ctx, client, args)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(res)
}

func search(ctx context.Context, searcher metadata.Searcher, args []string) (result, error) {
	switch {
	case args[0] == "artist" && len(args) == 2:
		artist, found, err := searcher.SearchArtist(ctx, args[1])
		if err != nil || !found {
			return result{}, err
		}
		return result{Found: true, Artist: artist}, nil

	case args[0] == "track" && len(args) == 3:
		track, found, err := searcher.SearchTrack(ctx, args[1], args[2])
		if err != nil || !found {
			return result{}, err
		}
		return result{Found: true, Track: track}, nil

	default:
		return result{}, errUsage
	}
}
