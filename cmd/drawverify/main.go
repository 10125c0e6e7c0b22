// Command drawverify recomputes stored e-draws offline. It reads draw
// records as served by GET /api/v1/draws/:id (or the {"draw": ...} body of
// a draw response) and exits non-zero if any of them does not reproduce.
//
// Usage:
//
//	drawverify [-winners] record.json [more.json ...]
//	curl .../draws/<id> | drawverify -
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/stwalsh4118/landflow/internal/logger"
	"github.com/stwalsh4118/landflow/internal/models"
	"github.com/stwalsh4118/landflow/internal/services"
)

func main() {
	winners := flag.Bool("winners", false, "print the selected application ids of each verified draw")
	flag.Parse()

	log := logger.New("development")
	if flag.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "usage: drawverify [-winners] <record.json|-> ...")
		os.Exit(2)
	}

	failed := 0
	for _, path := range flag.Args() {
		rec, err := readRecord(path)
		if err != nil {
			log.Error("Could not read draw record", err, map[string]interface{}{"file": path})
			failed++
			continue
		}
		if err := services.VerifyDraw(rec); err != nil {
			log.Error("Draw does not reproduce", err, map[string]interface{}{
				"file":    path,
				"draw_id": rec.ID,
			})
			failed++
			continue
		}
		log.Info("Draw verified", map[string]interface{}{
			"file":        path,
			"draw_id":     rec.ID,
			"scheme_id":   rec.SchemeID,
			"candidates":  len(rec.Candidates),
			"selected":    rec.SelectedCount,
			"inputs_hash": rec.InputsHash,
			"voided":      rec.Voided,
		})
		if *winners {
			for i, id := range rec.Permutation[:rec.SelectedCount] {
				fmt.Printf("%d\t%s\n", i+1, id)
			}
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

func readRecord(path string) (*models.DrawRecord, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	var body struct {
		models.DrawRecord
		Draw *models.DrawRecord `json:"draw"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	if body.Draw != nil {
		return body.Draw, nil
	}
	return &body.DrawRecord, nil
}
