// Copyright © 2024-2026 Jose Cantu
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

// Package dbs is the reference-database registry. Databases are resolved
// by short key (gg2, silva, ncbi, or user-defined) through a TOML config
// file, with path templates expanded against the database home directory.
package dbs

import (
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
)

// Environment variables the registry honors.
const (
	// ConfigEnv overrides the config file location.
	ConfigEnv = "MICROSEQ_CONFIG"
	// DBHomeEnv overrides the database home directory, winning over the
	// db_home config key.
	DBHomeEnv = "MICROSEQ_DB_HOME"
)

// DefaultDBHome is where databases live when nothing else is configured.
const DefaultDBHome = "~/.microseq_dbs"

// dbHomeVar is the placeholder usable in configured paths.
const dbHomeVar = "${MICROSEQ_DB_HOME}"

// ErrUnknownDatabase is returned when a database key is not registered.
var ErrUnknownDatabase = stderrors.New("unknown database")

// Database locates the files of one reference database. BlastDB is the
// makeblastdb index prefix, Fasta the raw sequences for vsearch, and
// Taxonomy the accession-to-lineage table. Any field may be empty when
// that artifact does not exist for the database.
type Database struct {
	BlastDB  string `toml:"blast_db,omitempty"`
	Fasta    string `toml:"fasta,omitempty"`
	Taxonomy string `toml:"taxonomy,omitempty"`
}

// Config is the on-disk registry file layout.
type Config struct {
	DBHome    string              `toml:"db_home"`
	Databases map[string]Database `toml:"databases"`
}

// Registry is a loaded registry with all paths expanded.
type Registry struct {
	// Path is the config file that was read, empty when only builtin
	// defaults are in effect.
	Path string
	// DBHome is the expanded database home directory.
	DBHome string

	databases map[string]Database
}

// builtinDatabases are the three references microseq-setup installs.
// The NCBI 16S database ships pre-indexed, so it has no FASTA on disk.
func builtinDatabases() map[string]Database {
	return map[string]Database{
		"gg2": {
			BlastDB:  dbHomeVar + "/gg2/greengenes2_db",
			Fasta:    dbHomeVar + "/gg2/dna-sequences.fasta",
			Taxonomy: dbHomeVar + "/gg2/taxonomy.tsv",
		},
		"silva": {
			BlastDB:  dbHomeVar + "/silva/silva_db",
			Fasta:    dbHomeVar + "/silva/SILVA_138.1_SSURef_NR99_tax_silva_trunc.fasta",
			Taxonomy: dbHomeVar + "/silva/taxonomy.tsv",
		},
		"ncbi": {
			BlastDB:  dbHomeVar + "/ncbi/16S_ribosomal_RNA",
			Taxonomy: dbHomeVar + "/ncbi/taxonomy.tsv",
		},
	}
}

// DefaultConfigPath returns ~/.microseq/microseq.toml.
func DefaultConfigPath() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "locate home directory")
	}
	return filepath.Join(home, ".microseq", "microseq.toml"), nil
}

// pickConfigPath resolves the config location: explicit argument, then
// $MICROSEQ_CONFIG, then the default path. The second return value says
// whether the user named the file, in which case it has to exist.
func pickConfigPath(path string) (string, bool, error) {
	if path != "" {
		return path, true, nil
	}
	if env := os.Getenv(ConfigEnv); env != "" {
		return env, true, nil
	}
	path, err := DefaultConfigPath()
	return path, false, err
}

// Load reads the registry. An empty path means: use $MICROSEQ_CONFIG or
// the default location. A missing default config is fine, the builtin
// databases still resolve; a missing explicitly-named config is an error.
// User entries merge field-wise over the builtins, so overriding just the
// taxonomy of gg2 keeps its builtin index paths.
func Load(path string) (*Registry, error) {
	path, explicit, err := pickConfigPath(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	loaded := path
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err = toml.Unmarshal(data, &cfg); err != nil {
			return nil, errors.Wrapf(err, "parse database config %s", path)
		}
	case os.IsNotExist(err) && !explicit:
		loaded = ""
	default:
		return nil, errors.Wrapf(err, "read database config %s", path)
	}

	dbHome := os.Getenv(DBHomeEnv)
	if dbHome == "" {
		dbHome = cfg.DBHome
	}
	if dbHome == "" {
		dbHome = DefaultDBHome
	}
	dbHome, err = homedir.Expand(dbHome)
	if err != nil {
		return nil, errors.Wrap(err, "expand database home")
	}

	databases := builtinDatabases()
	for key, db := range cfg.Databases {
		merged := databases[key]
		if db.BlastDB != "" {
			merged.BlastDB = db.BlastDB
		}
		if db.Fasta != "" {
			merged.Fasta = db.Fasta
		}
		if db.Taxonomy != "" {
			merged.Taxonomy = db.Taxonomy
		}
		databases[key] = merged
	}
	for key, db := range databases {
		if db.BlastDB, err = expandPath(db.BlastDB, dbHome); err != nil {
			return nil, err
		}
		if db.Fasta, err = expandPath(db.Fasta, dbHome); err != nil {
			return nil, err
		}
		if db.Taxonomy, err = expandPath(db.Taxonomy, dbHome); err != nil {
			return nil, err
		}
		databases[key] = db
	}

	return &Registry{Path: loaded, DBHome: dbHome, databases: databases}, nil
}

func expandPath(template, dbHome string) (string, error) {
	if template == "" {
		return "", nil
	}
	path, err := homedir.Expand(strings.ReplaceAll(template, dbHomeVar, dbHome))
	if err != nil {
		return "", errors.Wrapf(err, "expand path %s", template)
	}
	return path, nil
}

// Keys lists the registered database keys, sorted.
func (r *Registry) Keys() []string {
	keys := make([]string, 0, len(r.databases))
	for key := range r.databases {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Get resolves a database by key.
func (r *Registry) Get(key string) (Database, error) {
	db, ok := r.databases[key]
	if !ok {
		return Database{}, errors.Wrapf(ErrUnknownDatabase,
			"%s (choose from: %s)", key, strings.Join(r.Keys(), ", "))
	}
	return db, nil
}

// BlastDBExists reports whether a BLAST index is present at the prefix,
// covering both single-volume (.nsq) and multi-volume (.nal) layouts.
func BlastDBExists(prefix string) bool {
	if prefix == "" {
		return false
	}
	for _, ext := range []string{".nsq", ".nal", ".00.nsq"} {
		if _, err := os.Stat(prefix + ext); err == nil {
			return true
		}
	}
	return false
}

// FileExists reports whether a regular file is present.
func FileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// InitConfig writes a starter config with the builtin databases to the
// resolved config location, refusing to overwrite an existing file.
// Returns the path written.
func InitConfig(path string) (string, error) {
	path, _, err := pickConfigPath(path)
	if err != nil {
		return "", err
	}
	if _, err = os.Stat(path); err == nil {
		return path, fmt.Errorf("config file already exists: %s", path)
	}

	data, err := toml.Marshal(Config{
		DBHome:    DefaultDBHome,
		Databases: builtinDatabases(),
	})
	if err != nil {
		return "", errors.Wrap(err, "encode database config")
	}

	if err = os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", errors.Wrapf(err, "create config directory %s", filepath.Dir(path))
	}
	tmp := path + ".tmp"
	if err = os.WriteFile(tmp, data, 0644); err != nil {
		return "", errors.Wrapf(err, "write database config %s", tmp)
	}
	if err = os.Rename(tmp, path); err != nil {
		return "", errors.Wrapf(err, "rename %s to %s", tmp, path)
	}
	return path, nil
}
