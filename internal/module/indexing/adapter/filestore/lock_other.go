//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly)

package filestore

import (
	"errors"
	"os"
)

var errLocked = errors.New("file is locked")

// ファイルロック非対応の環境ではプロセス内の排他のみ行う
func tryLockFile(*os.File) error { return nil }

func unlockFile(*os.File) error { return nil }
