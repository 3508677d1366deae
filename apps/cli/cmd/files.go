package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/abdul-hamid-achik/apitest/packages/core/parser"
)

// FileExtension is the extension of test files.
const FileExtension = ".apitest"

var errNoFiles = errors.New("no " + FileExtension + " files found")

// targetPaths returns args, or the working directory when none are given.
func targetPaths(args []string) []string {
	if len(args) > 0 {
		return args
	}
	return []string{directoryFlag}
}

func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("cannot access %s: %w", arg, err)
		}

		if !info.IsDir() {
			if isTestFile(arg) {
				files = append(files, arg)
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() && path != arg && len(d.Name()) > 1 && d.Name()[0] == '.' {
				return filepath.SkipDir
			}
			if !d.IsDir() && isTestFile(path) {
				found = append(found, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
		sort.Strings(found)
		files = append(files, found...)
	}
	return files, nil
}

func isTestFile(path string) bool {
	return filepath.Ext(path) == FileExtension
}

// isParseError reports whether err came from lexing or parsing a file.
func isParseError(err error) bool {
	var pe *parser.ParseError
	var te *parser.TokenError
	return errors.As(err, &pe) || errors.As(err, &te)
}
