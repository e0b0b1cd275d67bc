// Package fragfile persists ordered configuration fragments as managed files,
// and tracks what was written in a database so unchanged content causes no
// write and no reload.
package fragfile

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"os/user"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jaketus/nginxmailhost/config"
	"github.com/jaketus/nginxmailhost/metrics"
	"github.com/jaketus/nginxmailhost/mlog"
)

// Fragment is one rendered chunk of a managed file. Fragments are
// concatenated in ascending case-sensitive lexicographic OrderKey order, with
// a blank line between them.
type Fragment struct {
	OrderKey string
	Text     string
}

// Write brings the managed file at path in line with the fragments: for
// ensure present the ordered concatenation is written atomically (temporary
// file, then rename) with the given owner, group and mode; for ensure absent
// the file is removed. Returns whether the content on disk changed, so the
// caller can reload the consuming service once per pass. Idempotent: writing
// identical fragments again reports no change.
func Write(ctx context.Context, log *mlog.Log, path, ensure, owner, group string, mode fs.FileMode, fragments []Fragment) (changed bool, rerr error) {
	if ensure == config.Absent {
		return remove(ctx, log, path)
	}

	content := Concat(fragments)
	prev, err := os.ReadFile(path)
	exists := err == nil
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("reading current file: %v", err)
	}
	if exists && bytes.Equal(prev, content) {
		if err := recordWritten(ctx, path, content); err != nil {
			return false, err
		}
		log.Debug("managed file unchanged", mlog.Field("path", path))
		return false, nil
	}

	uid, gid, err := resolveFileOwner(owner, group)
	if err != nil {
		return false, err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, content, mode); err != nil {
		return false, fmt.Errorf("writing temp file: %v", err)
	}
	defer func() {
		if rerr != nil {
			err := os.Remove(tmp)
			log.Check(err, "removing temp file after error", mlog.Field("path", tmp))
		}
	}()
	// WriteFile mode is subject to umask.
	if err := os.Chmod(tmp, mode); err != nil {
		return false, fmt.Errorf("chmod temp file: %v", err)
	}
	if uid >= 0 || gid >= 0 {
		if err := os.Chown(tmp, uid, gid); err != nil {
			return false, fmt.Errorf("chown temp file: %v", err)
		}
	}
	if err := syncFile(tmp); err != nil {
		return false, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, fmt.Errorf("renaming temp file in place: %v", err)
	}
	if err := syncDir(log, filepath.Dir(path)); err != nil {
		return false, err
	}
	if err := recordWritten(ctx, path, content); err != nil {
		return false, err
	}
	metrics.FileWriteInc()
	log.Info("managed file written", mlog.Field("path", path), mlog.Field("size", int64(len(content))), mlog.Field("fragments", len(fragments)))
	return true, nil
}

// Concat returns the file content for the fragments: ordered by OrderKey,
// joined with a blank line. Fragment order as planned does not matter, only
// the order keys do.
func Concat(fragments []Fragment) []byte {
	sorted := make([]Fragment, len(fragments))
	copy(sorted, fragments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OrderKey < sorted[j].OrderKey
	})
	var b bytes.Buffer
	for i, f := range sorted {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(f.Text)
	}
	return b.Bytes()
}

func remove(ctx context.Context, log *mlog.Log, path string) (bool, error) {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("removing file: %v", err)
	}
	existed := err == nil
	if existed {
		if err := syncDir(log, filepath.Dir(path)); err != nil {
			return false, err
		}
		metrics.FileWriteInc()
		log.Info("managed file removed", mlog.Field("path", path))
	}
	if err := recordRemoved(ctx, path); err != nil {
		return false, err
	}
	return existed, nil
}

// resolveFileOwner turns a user/group name or decimal id into uid/gid, -1
// when unset (ownership left as-is).
func resolveFileOwner(owner, group string) (uid, gid int, rerr error) {
	uid, gid = -1, -1
	if owner != "" {
		if u, err := user.Lookup(owner); err == nil {
			uid, err = strconv.Atoi(u.Uid)
			if err != nil {
				return -1, -1, fmt.Errorf("user %q has non-numeric uid %q: %v", owner, u.Uid, err)
			}
		} else if n, cerr := strconv.Atoi(owner); cerr == nil {
			uid = n
		} else {
			return -1, -1, fmt.Errorf("unknown user %q: %v", owner, err)
		}
	}
	if group != "" {
		if g, err := user.LookupGroup(group); err == nil {
			gid, err = strconv.Atoi(g.Gid)
			if err != nil {
				return -1, -1, fmt.Errorf("group %q has non-numeric gid %q: %v", group, g.Gid, err)
			}
		} else if n, cerr := strconv.Atoi(group); cerr == nil {
			gid = n
		} else {
			return -1, -1, fmt.Errorf("unknown group %q: %v", group, err)
		}
	}
	return uid, gid, nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for sync: %v", err)
	}
	err = f.Sync()
	xerr := f.Close()
	xlog.Check(xerr, "closing file after sync")
	if err != nil {
		return fmt.Errorf("sync file: %v", err)
	}
	return nil
}

// syncDir opens a directory and syncs its contents to disk, making a rename
// durable.
func syncDir(log *mlog.Log, dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %v", err)
	}
	err = d.Sync()
	xerr := d.Close()
	log.Check(xerr, "closing directory after sync")
	if err != nil {
		return fmt.Errorf("sync directory: %v", err)
	}
	return nil
}

func contentHash(content []byte) []byte {
	h := sha256.Sum256(content)
	return h[:]
}

// Notifier reloads the service that consumes the managed files.
type Notifier interface {
	Reload(ctx context.Context) error
}

// ExecNotifier reloads by running a command, e.g. nginx -s reload.
type ExecNotifier struct {
	Argv []string
}

func (n ExecNotifier) Reload(ctx context.Context) error {
	if len(n.Argv) == 0 {
		return fmt.Errorf("empty reload command")
	}
	cmd := exec.CommandContext(ctx, n.Argv[0], n.Argv[1:]...)
	out, err := cmd.CombinedOutput()
	metrics.ReloadObserve(err)
	if err != nil {
		return fmt.Errorf("reload command %q: %v (%q)", strings.Join(n.Argv, " "), err, strings.TrimSpace(string(out)))
	}
	xlog.Debug("service reloaded", mlog.Field("command", n.Argv))
	return nil
}
