package deploy

import (
	"encoding/base64"
	"fmt"
	"strings"
	"time"
)

// GenerateScript renders the batch as a runnable shell script of curl
// commands, one per item. Purely a debugging aid: it restates what the
// deployer does over the API so a run can be replayed or inspected by hand.
// The token is referenced through an environment variable, never embedded.
func GenerateScript(items []Item, baseURL, owner, branch string, now time.Time) string {
	var b strings.Builder
	b.WriteString("#!/bin/bash\n\n")
	b.WriteString("# Deployment commands\n")
	fmt.Fprintf(&b, "# Generated: %s\n\n", now.UTC().Format(time.RFC3339))

	for _, item := range items {
		m := item.Manifest
		message := fmt.Sprintf("Deploy: %s - %s", m.Filename, m.Label)
		content := base64.StdEncoding.EncodeToString(item.Payload.Transport)
		fmt.Fprintf(&b, `curl -X PUT \
  -H "Authorization: token ${GITHUB_TOKEN}" \
  -H "Accept: application/vnd.github.v3+json" \
  "%s/repos/%s/%s/contents/%s" \
  -d '{"message": "%s", "content": "%s", "branch": "%s"}'

`, baseURL, owner, m.TargetRepo, m.TargetPath, escapeJSON(message), content, branch)
	}
	return b.String()
}

func escapeJSON(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)
	return r.Replace(s)
}
