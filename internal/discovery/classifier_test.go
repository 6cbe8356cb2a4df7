package discovery

import "testing"

func TestClassifyFile(t *testing.T) {
	cases := []struct {
		name string
		want FileType
	}{
		{"math_test.lua", FileTypeTest},
		{"math_spec.lua", FileTypeTest},
		{"MATH_TEST.LUA", FileTypeTest},
		{"math.lua", FileTypeSource},
		{"helpers.lua", FileTypeSource},
		{"README.md", FileTypeSource},
	}
	for _, c := range cases {
		if got := ClassifyFile(c.name); got != c.want {
			t.Errorf("ClassifyFile(%q) = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestClassifyPathUsesBaseName(t *testing.T) {
	if got := ClassifyPath("/a/b/c/math_test.lua"); got != FileTypeTest {
		t.Errorf("ClassifyPath = %v, want FileTypeTest", got)
	}
}

func TestIsTestFileAndIsSourceFile(t *testing.T) {
	if !IsTestFile("a_test.lua") || IsSourceFile("a_test.lua") {
		t.Error("a_test.lua should classify as a test file only")
	}
	if IsTestFile("a.lua") || !IsSourceFile("a.lua") {
		t.Error("a.lua should classify as a source file only")
	}
}

func TestFileTypeString(t *testing.T) {
	if FileTypeTest.String() == "" || FileTypeSource.String() == "" {
		t.Error("String() should not be empty for a known FileType")
	}
	if FileTypeTest.String() == FileTypeSource.String() {
		t.Error("FileTypeTest and FileTypeSource should stringify differently")
	}
}
