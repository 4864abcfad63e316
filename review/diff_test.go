package review

import (
	"reflect"
	"testing"
)

const sampleDiff = `diff --git a/server/auth.go b/server/auth.go
index 1111111..2222222 100644
--- a/server/auth.go
+++ b/server/auth.go
@@ -10,6 +10,8 @@ func init() {
 	register()
-	old := connect()
+	session := connect()
+	validate(session)
 	finish()
@@ -40,3 +42,4 @@ func teardown() {
 	cleanup()
+	flush()
 }
diff --git a/server/old.go b/server/old.go
deleted file mode 100644
--- a/server/old.go
+++ /dev/null
@@ -1,3 +0,0 @@
-func legacy() {
-}
`

func TestParseDiff(t *testing.T) {
	files := parseDiff(sampleDiff)

	if len(files) != 1 {
		t.Fatalf("got %d files, want 1 (deleted file skipped)", len(files))
	}
	if files[0].Path != "server/auth.go" {
		t.Errorf("Path = %q", files[0].Path)
	}

	want := []diffLine{
		{Number: 11, Text: "\tsession := connect()"},
		{Number: 12, Text: "\tvalidate(session)"},
		{Number: 43, Text: "\tflush()"},
	}
	if !reflect.DeepEqual(files[0].Added, want) {
		t.Errorf("Added = %+v\nwant    %+v", files[0].Added, want)
	}
}

func TestParseDiffEmpty(t *testing.T) {
	if files := parseDiff(""); len(files) != 0 {
		t.Errorf("got %d files for empty diff", len(files))
	}
}

func TestChangedSymbols(t *testing.T) {
	tests := []struct {
		name string
		diff string
		want []string
	}{
		{
			name: "go function",
			diff: "+func Retry(n int) error {",
			want: []string{"Retry"},
		},
		{
			name: "go method",
			diff: "+func (c *Client) Dial(addr string) error {",
			want: []string{"Dial"},
		},
		{
			name: "python def",
			diff: "+def handle_request(req):",
			want: []string{"handle_request"},
		},
		{
			name: "async python def",
			diff: "+    async def fetch(url):",
			want: []string{"fetch"},
		},
		{
			name: "javascript function",
			diff: "+export function render(tree) {",
			want: []string{"render"},
		},
		{
			name: "removed definition counts",
			diff: "-func Legacy() {",
			want: []string{"Legacy"},
		},
		{
			name: "deduplicated in first-seen order",
			diff: "+func A() {\n+func B() {\n-func A() {",
			want: []string{"A", "B"},
		},
		{
			name: "file headers ignored",
			diff: "+++ b/func.go\n--- a/func.go",
			want: nil,
		},
		{
			name: "call sites are not definitions",
			diff: "+\tresult := Compute(x)",
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := changedSymbols(tt.diff)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("changedSymbols() = %v, want %v", got, tt.want)
			}
		})
	}
}
