package gitfilter

import (
	"bufio"
	"bytes"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// gitOutput runs git -C repo with args and returns stdout, trimmed.
func gitOutput(repo string, args ...string) (string, error) {
	cmd := exec.Command("git", append([]string{"-C", repo}, args...)...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %v: %s: %w",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()), ErrSubprocess)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// gitStatus runs git -C repo with args for its side effect only.
func gitStatus(repo string, args ...string) error {
	_, err := gitOutput(repo, args...)
	return err
}

// gitDir resolves the absolute git directory of repo.
func gitDir(repo string) (string, error) {
	out, err := gitOutput(repo, "rev-parse", "--git-dir")
	if err != nil {
		return "", fmt.Errorf("%s: %w", repo, ErrNotARepo)
	}
	if filepath.IsAbs(out) {
		return out, nil
	}
	return filepath.Join(repo, out), nil
}

// allRefs returns every ref of repo mapped to its object id.
func allRefs(repo string) (map[string]string, error) {
	out, err := gitOutput(repo, "for-each-ref", "--format=%(refname) %(objectname)")
	if err != nil {
		return nil, err
	}
	refs := make(map[string]string)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		name, oid, found := strings.Cut(sc.Text(), " ")
		if !found || name == "" || oid == "" {
			continue
		}
		refs[name] = oid
	}
	return refs, nil
}

// refExists verifies a fully qualified ref in repo.
func refExists(repo, ref string) bool {
	return gitStatus(repo, "show-ref", "--verify", "--quiet", ref) == nil
}

// symbolicHEAD returns the symbolic target of HEAD, or "" when detached.
func symbolicHEAD(repo string) string {
	out, err := gitOutput(repo, "symbolic-ref", "-q", "HEAD")
	if err != nil {
		return ""
	}
	return out
}

// setHEAD repositions the symbolic HEAD.
func setHEAD(repo, ref string) error {
	return gitStatus(repo, "symbolic-ref", "HEAD", ref)
}

// hasRemote reports whether repo has a remote with the given name.
func hasRemote(repo, name string) bool {
	out, err := gitOutput(repo, "remote")
	if err != nil {
		return false
	}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == name {
			return true
		}
	}
	return false
}

// remoteURL returns the configured url of a remote, or "".
func remoteURL(repo, name string) string {
	out, err := gitOutput(repo, "config", "--get", "remote."+name+".url")
	if err != nil {
		return ""
	}
	return out
}

// updateRefBatch feeds a transaction to git update-ref --stdin. The batch is
// all-or-nothing from the engine's point of view: any failure is fatal.
func updateRefBatch(repo string, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	cmd := exec.Command("git", "-C", repo, "update-ref", "--no-deref", "--stdin")
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%v: %s: %w", err, strings.TrimSpace(stderr.String()), ErrRefUpdateFailed)
	}
	return nil
}

// oversizeBlobs runs a batch size query over all objects of repo and returns
// the oids of blobs larger than max.
func oversizeBlobs(repo string, max int64) (map[string]empty, error) {
	out, err := gitOutput(repo, "cat-file", "--batch-all-objects",
		"--batch-check=%(objectname) %(objecttype) %(objectsize)")
	if err != nil {
		return nil, err
	}
	oversize := make(map[string]empty)
	sc := bufio.NewScanner(strings.NewReader(out))
	sc.Buffer(make([]byte, 0, 1<<16), 1<<20)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) != 3 || fields[1] != "blob" {
			continue
		}
		var size int64
		if _, err := fmt.Sscanf(fields[2], "%d", &size); err != nil {
			continue
		}
		if size > max {
			oversize[strings.ToLower(fields[0])] = empty{}
		}
	}
	return oversize, nil
}
