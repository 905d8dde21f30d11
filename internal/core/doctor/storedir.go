package doctor

import (
	"context"
	"fmt"
	"os"
)

// StoreDirCheck verifies that the session directory exists and is writable.
type StoreDirCheck struct {
	dir     string
	autofix bool
}

// NewStoreDirCheck creates a new store directory check. With autofix a
// missing directory is created.
func NewStoreDirCheck(dir string, autofix bool) *StoreDirCheck {
	return &StoreDirCheck{dir: dir, autofix: autofix}
}

func (c *StoreDirCheck) Name() string {
	return "Session Directory"
}

func (c *StoreDirCheck) Run(_ context.Context) Result {
	result := Result{Name: c.Name()}

	info, err := os.Stat(c.dir)
	switch {
	case os.IsNotExist(err):
		if c.autofix {
			if err := os.MkdirAll(c.dir, 0o700); err != nil {
				result.Items = append(result.Items, CheckItem{
					Label:  c.dir,
					Status: StatusFail,
					Detail: fmt.Sprintf("create failed: %v", err),
				})
				return result
			}
			result.Items = append(result.Items, CheckItem{
				Label:  c.dir,
				Status: StatusPass,
				Detail: "created",
			})
			return result
		}
		result.Items = append(result.Items, CheckItem{
			Label:   c.dir,
			Status:  StatusWarn,
			Detail:  "directory does not exist (created on first save)",
			Fixable: true,
		})
		return result
	case err != nil:
		result.Items = append(result.Items, CheckItem{
			Label:  c.dir,
			Status: StatusFail,
			Detail: fmt.Sprintf("inaccessible: %v", err),
		})
		return result
	case !info.IsDir():
		result.Items = append(result.Items, CheckItem{
			Label:  c.dir,
			Status: StatusFail,
			Detail: "path is not a directory",
		})
		return result
	}

	result.Items = append(result.Items, c.writeProbe())

	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		result.Items = append(result.Items, CheckItem{
			Label:  "permissions",
			Status: StatusWarn,
			Detail: fmt.Sprintf("%#o is accessible to other users", perm),
		})
	} else {
		result.Items = append(result.Items, CheckItem{
			Label:  "permissions",
			Status: StatusPass,
			Detail: fmt.Sprintf("%#o", perm),
		})
	}

	return result
}

// writeProbe creates and removes a hidden file, the same way a save does.
func (c *StoreDirCheck) writeProbe() CheckItem {
	f, err := os.CreateTemp(c.dir, ".doctor-probe-*")
	if err != nil {
		return CheckItem{
			Label:  c.dir,
			Status: StatusFail,
			Detail: fmt.Sprintf("not writable: %v", err),
		}
	}
	name := f.Name()
	_ = f.Close()
	if err := os.Remove(name); err != nil {
		return CheckItem{
			Label:  c.dir,
			Status: StatusWarn,
			Detail: fmt.Sprintf("probe file not removed: %v", err),
		}
	}

	return CheckItem{Label: c.dir, Status: StatusPass, Detail: "writable"}
}
