package prompt

import (
	"fmt"
	"strings"

	"github.com/awsl-project/appforge/internal/domain"
	"github.com/awsl-project/appforge/internal/jsonx"
)

// BuildUserPrompt returns the user turn for a generation request. Editing an
// existing project asks for marker values on untouched files so the model
// only spends output tokens on what it changes.
func BuildUserPrompt(message string, existing *domain.FileMap) string {
	if existing.Len() == 0 {
		return fmt.Sprintf(`Create a new application based on this description:

%s

IMPORTANT:
- Generate ALL required files: package.json, vite.config.js, tailwind.config.js, postcss.config.js, index.html, and all source files
- Each file value must be a STRING containing the file content (use \n for newlines)
- Return valid JSON with "message" and "files" keys`, message)
	}

	current, err := jsonx.MarshalIndent(existing, "", "  ")
	if err != nil {
		current = []byte("{}")
	}

	var sb strings.Builder
	sb.WriteString("You are editing an existing project. These are the current files:\n\n")
	sb.WriteString("<current_files>\n")
	sb.Write(current)
	sb.WriteString("\n</current_files>\n\n")
	fmt.Fprintf(&sb, "User request: %s\n\n", message)
	fmt.Fprintf(&sb, `IMPORTANT OUTPUT FORMAT:
- Return a JSON object with "message" and "files" keys
- For files you CHANGED: include the full new content as a string
- For files you did NOT change: use the marker "%[1]s"
- For files to DELETE: use the marker "%[2]s"
- For NEW files: include the full content

Example response format:
{
  "message": "Updated the header component",
  "files": {
    "src/App.jsx": "%[1]s",
    "src/Header.jsx": "import React from 'react';\n...(full new content)",
    "src/NewComponent.jsx": "import React from 'react';\n...(new file)",
    "src/OldUnused.jsx": "%[2]s"
  }
}

Only include full content for files you actually modified or created.`, domain.MarkerUnchanged, domain.MarkerDelete)
	return sb.String()
}

// BuildRegenerationPrompt asks for the complete content of one file, giving
// every file recovered so far as context.
func BuildRegenerationPrompt(path string, files *domain.FileMap, instruction string) string {
	var ctx []string
	files.Range(func(p, content string) bool {
		ctx = append(ctx, fmt.Sprintf("=== %s ===\n%s", p, content))
		return true
	})

	return fmt.Sprintf(`I need you to generate the content for this file: %[1]s

This file was truncated during a previous generation. Here is the context of the project:

<original_request>
%[2]s
</original_request>

<existing_files>
%[3]s
</existing_files>

Now generate the COMPLETE content for: %[1]s

Remember: Output ONLY the file content - no JSON, no markdown code blocks, no explanations.`, path, instruction, strings.Join(ctx, "\n\n"))
}

// BuildEnhancerPrompt wraps the raw user request for EnhancerSystemPrompt.
func BuildEnhancerPrompt(message string) string {
	return fmt.Sprintf(`Enhance this prompt for generating a complete web application:

<original_prompt>
%s
</original_prompt>

Remember: Only output the enhanced prompt text, nothing else.`, message)
}
