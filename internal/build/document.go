package build

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMalformedCollection is returned when a build collection
// doesn't have the expected shape.
var ErrMalformedCollection = errors.New("malformed build collection")

// documentBuild is the JSON shape of a build in a builds document:
//
//	{"builds": {"<id>": {"id": "<id>", "startTime": "...", "result": null}}}
//
// A result is {"ok": true, "value": {"pdfUrl": "..."}, ...}
// or {"ok": false, "error": "...", ...} with finishTime, stdout and stderr.
type documentBuild struct {
	ID        *string         `json:"id"`
	StartTime *time.Time      `json:"startTime"`
	Result    *documentResult `json:"result"`
}

type documentResult struct {
	OK         *bool                `json:"ok"`
	Value      *documentBuildOutput `json:"value,omitempty"`
	Error      *string              `json:"error,omitempty"`
	FinishTime *time.Time           `json:"finishTime"`
	Stdout     string               `json:"stdout"`
	Stderr     string               `json:"stderr"`
}

type documentBuildOutput struct {
	PDFURL *string `json:"pdfUrl"`
}

type document struct {
	Builds *map[string]*documentBuild `json:"builds"`
}

// ParseDocument parses a builds document.
// Any shape error is wrapped with ErrMalformedCollection.
func ParseDocument(data []byte) (Collection, error) {
	var doc document
	if err := decodeStrict(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCollection, err)
	}
	if doc.Builds == nil {
		return nil, fmt.Errorf("%w: missing builds field", ErrMalformedCollection)
	}

	c := make(Collection, len(*doc.Builds))
	for key, db := range *doc.Builds {
		b, err := buildFromDocumentBuild(db)
		if err != nil {
			return nil, fmt.Errorf("%w: build %s: %w", ErrMalformedCollection, key, err)
		}
		if b.ID != key {
			return nil, fmt.Errorf("%w: build %s: id is %q", ErrMalformedCollection, key, b.ID)
		}
		c[key] = b
	}
	return c, nil
}

// ParseBuild parses a single build in the builds document shape.
func ParseBuild(data []byte) (*Build, error) {
	var db *documentBuild
	if err := decodeStrict(data, &db); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCollection, err)
	}
	b, err := buildFromDocumentBuild(db)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedCollection, err)
	}
	return b, nil
}

// MarshalDocument encodes c as a builds document.
func MarshalDocument(c Collection) ([]byte, error) {
	builds := make(map[string]*documentBuild, len(c))
	for id, b := range c {
		builds[id] = documentBuildFromBuild(b)
	}
	return json.Marshal(document{Builds: &builds})
}

// MarshalBuild encodes b in the builds document shape.
func MarshalBuild(b *Build) ([]byte, error) {
	return json.Marshal(documentBuildFromBuild(b))
}

func decodeStrict(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return errors.New("multiple top-level values")
	}
	return nil
}

func buildFromDocumentBuild(db *documentBuild) (*Build, error) {
	if db == nil {
		return nil, errors.New("null build")
	}
	if db.ID == nil || *db.ID == "" {
		return nil, errors.New("missing id field")
	}
	if db.StartTime == nil {
		return nil, errors.New("missing startTime field")
	}

	b := &Build{ID: *db.ID, StartTime: *db.StartTime}
	if db.Result == nil {
		return b, nil
	}

	r := db.Result
	if r.OK == nil {
		return nil, errors.New("missing result.ok field")
	}
	if r.FinishTime == nil {
		return nil, errors.New("missing result.finishTime field")
	}
	b.Result = &Result{
		OK:         *r.OK,
		FinishTime: *r.FinishTime,
		Stdout:     r.Stdout,
		Stderr:     r.Stderr,
	}
	if *r.OK {
		if r.Value == nil || r.Value.PDFURL == nil || *r.Value.PDFURL == "" {
			return nil, errors.New("missing result.value.pdfUrl field")
		}
		b.Result.ArtifactRef = *r.Value.PDFURL
	} else {
		if r.Error == nil {
			return nil, errors.New("missing result.error field")
		}
		b.Result.Error = *r.Error
	}
	return b, nil
}

func documentBuildFromBuild(b *Build) *documentBuild {
	id, startTime := b.ID, b.StartTime
	db := &documentBuild{ID: &id, StartTime: &startTime}
	if b.Result == nil {
		return db
	}

	ok, finishTime := b.Result.OK, b.Result.FinishTime
	db.Result = &documentResult{
		OK:         &ok,
		FinishTime: &finishTime,
		Stdout:     b.Result.Stdout,
		Stderr:     b.Result.Stderr,
	}
	if ok {
		pdfURL := b.Result.ArtifactRef
		db.Result.Value = &documentBuildOutput{PDFURL: &pdfURL}
	} else {
		errorValue := b.Result.Error
		db.Result.Error = &errorValue
	}
	return db
}
