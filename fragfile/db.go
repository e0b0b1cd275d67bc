package fragfile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mjl-/bstore"

	"github.com/jaketus/nginxmailhost/mlog"
)

var (
	xlog = mlog.New("fragfile")

	fileDB *bstore.DB
	mutex  sync.Mutex
)

// FileRecord tracks one managed configuration file as last written, for
// change detection and for inspection with the state subcommand.
type FileRecord struct {
	Path     string // Absolute path of the managed file.
	SHA256   []byte
	Size     int64
	Modified time.Time `bstore:"default now"`
}

func database(ctx context.Context, dataDir string) (*bstore.DB, error) {
	mutex.Lock()
	defer mutex.Unlock()
	if fileDB == nil {
		p := filepath.Join(dataDir, "fragfile.db")
		os.MkdirAll(filepath.Dir(p), 0770)
		db, err := bstore.Open(ctx, p, &bstore.Options{Timeout: 5 * time.Second, Perm: 0660}, FileRecord{})
		if err != nil {
			return nil, err
		}
		fileDB = db
	}
	return fileDB, nil
}

// Init opens and possibly initializes the database under dataDir.
func Init(ctx context.Context, dataDir string) error {
	_, err := database(ctx, dataDir)
	return err
}

// Close closes the database connection.
func Close() error {
	mutex.Lock()
	defer mutex.Unlock()
	if fileDB == nil {
		return nil
	}
	err := fileDB.Close()
	fileDB = nil
	return err
}

func recordWritten(ctx context.Context, path string, content []byte) error {
	db, err := dbOpened()
	if err != nil {
		return err
	}
	record := FileRecord{Path: path, SHA256: contentHash(content), Size: int64(len(content)), Modified: time.Now()}
	cur := FileRecord{Path: path}
	if err := db.Get(ctx, &cur); err == bstore.ErrAbsent {
		return db.Insert(ctx, &record)
	} else if err != nil {
		return fmt.Errorf("get file record: %v", err)
	}
	if bytes.Equal(cur.SHA256, record.SHA256) && cur.Size == record.Size {
		return nil
	}
	return db.Update(ctx, &record)
}

func recordRemoved(ctx context.Context, path string) error {
	db, err := dbOpened()
	if err != nil {
		return err
	}
	if err := db.Delete(ctx, &FileRecord{Path: path}); err != nil && err != bstore.ErrAbsent {
		return fmt.Errorf("delete file record: %v", err)
	}
	return nil
}

// Records returns all tracked files, sorted by path.
func Records(ctx context.Context) ([]FileRecord, error) {
	db, err := dbOpened()
	if err != nil {
		return nil, err
	}
	return bstore.QueryDB[FileRecord](ctx, db).SortAsc("Path").List()
}

func dbOpened() (*bstore.DB, error) {
	mutex.Lock()
	defer mutex.Unlock()
	if fileDB == nil {
		return nil, fmt.Errorf("fragfile database not initialized")
	}
	return fileDB, nil
}
