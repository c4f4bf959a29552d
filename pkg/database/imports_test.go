package database

import (
	"go/parser"
	"go/token"
	"path/filepath"
	"strings"
	"testing"
)

// 服务端二进制不应链接测试用的 SQLite 驱动
func TestNoSQLiteDriverInProductionFiles(t *testing.T) {
	files, err := filepath.Glob("*.go")
	if err != nil {
		t.Fatal(err)
	}
	fset := token.NewFileSet()
	for _, f := range files {
		if strings.HasSuffix(f, "_test.go") {
			continue
		}
		parsed, err := parser.ParseFile(fset, f, nil, parser.ImportsOnly)
		if err != nil {
			t.Fatalf("parse %s: %v", f, err)
		}
		for _, imp := range parsed.Imports {
			if strings.Contains(imp.Path.Value, "sqlite") {
				t.Errorf("%s imports %s", f, imp.Path.Value)
			}
		}
	}
}
