// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package fsstore is a reference store.StorageAdapter that keeps one
// JSON file per document under a root directory. It exists to give
// store.StorageAdapter a real consumer and is not part of the core.
package fsstore

import (
	"context"
	"encoding/json"
	"iter"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/starlingdb/starling/internal/document"
)

// Adapter is a filesystem-backed store.StorageAdapter.
type Adapter struct {
	root   string
	logger logrus.FieldLogger
}

// Option configures an Adapter, following the usual functional
// option idiom.
type Option func(*Adapter)

// WithLogger overrides the logrus.FieldLogger used for every Put and
// Delete.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(a *Adapter) { a.logger = logger }
}

// New opens (creating if necessary) a fsstore rooted at dir, returning
// the Adapter and a cleanup func. fsstore has no open handles to
// release, so the returned cleanup is a no-op.
func New(dir string, opts ...Option) (*Adapter, func(), error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, errors.Wrapf(err, "fsstore: could not create root %q", dir)
	}

	a := &Adapter{root: dir, logger: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(a)
	}
	return a, func() {}, nil
}

func (a *Adapter) path(key string) string {
	return filepath.Join(a.root, url.PathEscape(key)+".json")
}

// Get reads and decodes the document stored under key, if any.
func (a *Adapter) Get(_ context.Context, key string) (*document.Document, bool, error) {
	data, err := os.ReadFile(a.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrapf(err, "fsstore: could not read %q", key)
	}

	var doc document.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, false, errors.Wrapf(err, "fsstore: could not decode %q", key)
	}
	return &doc, true, nil
}

// Put writes doc under key, replacing any prior contents. The write is
// staged to a temp file and renamed into place so a crash mid-write
// never leaves a half-written document behind.
func (a *Adapter) Put(_ context.Context, key string, doc *document.Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "fsstore: could not encode %q", key)
	}

	dest := a.path(key)
	tmp := dest + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "fsstore: could not stage %q", key)
	}
	if err := os.Rename(tmp, dest); err != nil {
		return errors.Wrapf(err, "fsstore: could not commit %q", key)
	}

	a.logger.WithFields(logrus.Fields{"key": key, "bytes": len(data)}).Debug("fsstore: put")
	return nil
}

// Delete removes the document stored under key, reporting whether one
// existed.
func (a *Adapter) Delete(_ context.Context, key string) (bool, error) {
	err := os.Remove(a.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrapf(err, "fsstore: could not delete %q", key)
	}
	a.logger.WithField("key", key).Debug("fsstore: delete")
	return true, nil
}

// Entries lazily decodes every document currently on disk.
func (a *Adapter) Entries(_ context.Context) (iter.Seq2[string, *document.Document], error) {
	files, err := os.ReadDir(a.root)
	if err != nil {
		return nil, errors.Wrapf(err, "fsstore: could not list %q", a.root)
	}

	return func(yield func(string, *document.Document) bool) {
		for _, f := range files {
			if f.IsDir() || !strings.HasSuffix(f.Name(), ".json") {
				continue
			}
			data, err := os.ReadFile(filepath.Join(a.root, f.Name()))
			if err != nil {
				a.logger.WithError(err).WithField("file", f.Name()).Warn("fsstore: skipping unreadable entry")
				continue
			}
			var doc document.Document
			if err := json.Unmarshal(data, &doc); err != nil {
				a.logger.WithError(err).WithField("file", f.Name()).Warn("fsstore: skipping undecodable entry")
				continue
			}
			key, unescapeErr := url.PathUnescape(strings.TrimSuffix(f.Name(), ".json"))
			if unescapeErr != nil {
				key = strings.TrimSuffix(f.Name(), ".json")
			}
			if !yield(key, &doc) {
				return
			}
		}
	}, nil
}

// Clear removes every document under the adapter's root.
func (a *Adapter) Clear(_ context.Context) error {
	files, err := os.ReadDir(a.root)
	if err != nil {
		return errors.Wrapf(err, "fsstore: could not list %q", a.root)
	}
	for _, f := range files {
		if err := os.Remove(filepath.Join(a.root, f.Name())); err != nil {
			return errors.Wrapf(err, "fsstore: could not remove %q", f.Name())
		}
	}
	return nil
}
