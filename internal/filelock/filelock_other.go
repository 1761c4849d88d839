//go:build !unix

package filelock

import "os"

// Platforms without flock get no cross-process exclusion. Each store's mutex
// still serializes writers inside one process.
func tryLock(*os.File) (bool, error) { return true, nil }

func unlock(*os.File) {}
