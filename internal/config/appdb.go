package config

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// AppDB maps host profile ids to application names. It is loaded from an
// XML file of the form
//
//	<Games>
//	  <Game id="1001" name="Falcon 4.0"/>
//	</Games>
//
// Element and attribute names are matched case-insensitively.
type AppDB struct {
	path string

	mu       sync.RWMutex
	names    map[int]string
	warnings []string
}

// NewAppDB returns an empty database bound to path. Call Reload to read
// it.
func NewAppDB(path string) *AppDB {
	return &AppDB{path: path, names: map[int]string{}}
}

// LoadAppDB reads the database at path. On error the returned database
// is empty but usable.
func LoadAppDB(path string) (*AppDB, error) {
	db := NewAppDB(path)
	return db, db.Reload()
}

// Path returns the file the database is read from.
func (db *AppDB) Path() string {
	return db.path
}

// Reload re-reads the file. On error the current contents are kept.
func (db *AppDB) Reload() error {
	f, err := os.Open(db.path)
	if err != nil {
		return fmt.Errorf("open app database: %w", err)
	}
	defer f.Close()

	names, warnings, err := ParseAppDB(f)
	if err != nil {
		return fmt.Errorf("parse app database %s: %w", db.path, err)
	}

	db.mu.Lock()
	db.names = names
	db.warnings = warnings
	db.mu.Unlock()
	return nil
}

// Resolve returns the application name for id. Negative ids never
// resolve.
func (db *AppDB) Resolve(id int) (string, bool) {
	if id < 0 {
		return "", false
	}
	db.mu.RLock()
	defer db.mu.RUnlock()
	name, ok := db.names[id]
	return name, ok
}

// Len returns the number of entries.
func (db *AppDB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.names)
}

// IDs returns all ids in ascending order.
func (db *AppDB) IDs() []int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	ids := make([]int, 0, len(db.names))
	for id := range db.names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Warnings returns the problems found by the last successful Reload.
func (db *AppDB) Warnings() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return append([]string(nil), db.warnings...)
}

func attr(el xml.StartElement, name string) (string, bool) {
	for _, a := range el.Attr {
		if strings.EqualFold(a.Name.Local, name) {
			return a.Value, true
		}
	}
	return "", false
}

// ParseAppDB parses an application database. Entries with a missing or
// non-integer id, or without a name, are skipped with a warning. When the
// same id appears with two different names the first one wins and the
// conflict is reported.
func ParseAppDB(r io.Reader) (map[int]string, []string, error) {
	dec := xml.NewDecoder(r)
	names := map[int]string{}
	var warnings []string
	depth := 0
	sawRoot := false

	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			depth++
			switch depth {
			case 1:
				if !strings.EqualFold(el.Name.Local, "games") {
					return nil, nil, fmt.Errorf("root element should be \"Games\", not %q", el.Name.Local)
				}
				sawRoot = true
			case 2:
				if !strings.EqualFold(el.Name.Local, "game") {
					warnings = append(warnings, fmt.Sprintf("ignoring unexpected element %q", el.Name.Local))
					continue
				}
				rawID, ok := attr(el, "id")
				if !ok {
					warnings = append(warnings, "game element missing id attribute, ignoring")
					continue
				}
				id, err := strconv.Atoi(strings.TrimSpace(rawID))
				if err != nil {
					warnings = append(warnings, fmt.Sprintf("game element with invalid id attribute (%s), ignoring", rawID))
					continue
				}
				name, ok := attr(el, "name")
				if !ok {
					warnings = append(warnings, fmt.Sprintf("game %d missing name attribute, ignoring", id))
					continue
				}
				if prev, dup := names[id]; dup {
					if prev != name {
						warnings = append(warnings, fmt.Sprintf("id %d assigned to both %q and %q", id, prev, name))
					}
					continue
				}
				names[id] = name
			}
		case xml.EndElement:
			depth--
		}
	}

	if !sawRoot {
		return nil, nil, errors.New("empty app database")
	}
	return names, warnings, nil
}
