// Copyright 2026, Square, Inc.

package size

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/go-test/deep"

	"github.com/square/hpcbuild/proto"
	"github.com/square/hpcbuild/test/mock"
	"github.com/square/hpcbuild/xcmd"
)

func TestAnalyze(t *testing.T) {
	file, err := ioutil.TempFile("", "size-test-*.sif")
	if err != nil {
		t.Fatal(err)
	}
	defer os.Remove(file.Name())
	if _, err := file.Write(make([]byte, 1024)); err != nil {
		t.Fatal(err)
	}
	file.Close()

	execer := &mock.Execer{
		Responses: []mock.ExecResponse{
			{Prefix: "apptainer exec " + file.Name() + " du -sb /usr", Result: xcmd.Result{Stdout: "500\t/usr\n"}},
			{Prefix: "apptainer exec " + file.Name() + " du -sb /opt", Result: xcmd.Result{Stdout: "300\t/opt\n"}},
		},
	}
	a := NewAnalyzer(execer)

	report := a.Analyze("ml-stack", file.Name(), []string{"/usr", "/opt"})
	if report.TotalBytes != 1024 {
		t.Errorf("got total %d, expected 1024", report.TotalBytes)
	}
	expect := []proto.SectionSize{
		{Path: "/usr", Bytes: 500},
		{Path: "/opt", Bytes: 300},
	}
	if diff := deep.Equal(report.Sections, expect); diff != nil {
		t.Error(diff)
	}
}

func TestAnalyzeUnmeasurableSection(t *testing.T) {
	execer := &mock.Execer{
		DefaultResult: xcmd.Result{Exit: 1, Stderr: "no such file"},
	}
	report := NewAnalyzer(execer).Analyze("x", "/nonexistent.sif", []string{"/usr"})
	// Missing image and failing du produce an empty but valid report.
	if report.TotalBytes != 0 || len(report.Sections) != 0 {
		t.Errorf("unexpected report: %+v", report)
	}
}

func TestParseDu(t *testing.T) {
	if n, ok := parseDu("12345\t/usr\n"); !ok || n != 12345 {
		t.Errorf("got (%d, %v), expected (12345, true)", n, ok)
	}
	if _, ok := parseDu(""); ok {
		t.Error("parsed empty output")
	}
	if _, ok := parseDu("du: cannot access"); ok {
		t.Error("parsed error output")
	}
}
