package gitfilter_test

import (
	"fmt"

	"github.com/fardream/gitfilter"
)

// Example redacting a secret with a replacement-rules file: a bare line
// replaces with ***REMOVED***, and ==> selects the replacement.
func ExampleReplacer() {
	rules := []byte("API_KEY=abc123==>API_KEY=REDACTED\nhunter2\n")
	r, err := gitfilter.NewReplacer(rules)
	if err != nil {
		panic(err)
	}

	out, changed := r.Apply([]byte("API_KEY=abc123\npassword=hunter2\n"))
	fmt.Printf("changed: %v\n%s", changed, out)

	// Output:
	// changed: true
	// API_KEY=REDACTED
	// password=***REMOVED***
}

// Example of the byte-wise glob dialect: * stays within one path segment,
// ** crosses segments.
func ExampleGlobMatch() {
	fmt.Println(gitfilter.GlobMatch([]byte("*.txt"), []byte("notes.txt")))
	fmt.Println(gitfilter.GlobMatch([]byte("*.txt"), []byte("dir/notes.txt")))
	fmt.Println(gitfilter.GlobMatch([]byte("**/*.txt"), []byte("dir/sub/notes.txt")))

	// Output:
	// true
	// false
	// true
}

// Example quoting a path the way the fast-import stream expects.
func ExampleEnquote() {
	fmt.Println(string(gitfilter.Enquote([]byte("dir/with \"quotes\".txt"))))

	// Output:
	// "dir/with \"quotes\".txt"
}
