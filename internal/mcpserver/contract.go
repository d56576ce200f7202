package mcpserver

// FrontMatterContract describes how editable documents are laid out in a
// Grow project, for LLM consumers of the MCP tools.
const FrontMatterContract = `# Front Matter Format

Documents under /content carry their fields in a YAML front matter block.

## Structure

` + "```" + `markdown
---
title: About us                    # fields shown in the editor
$editor:                           # OPTIONAL: per-document field schema
  fields:
    - type: text
      key: title
      label: Title
---

Body text (Markdown or HTML).
` + "```" + `

## Rules

1. The opening ` + "`---`" + ` must be the very first line. A block without a closing
   ` + "`---`" + ` line is not front matter; the whole file is body text.
2. ` + "`.yaml`" + ` documents have no body: the whole file is the data.
3. The field schema of a document comes from the ` + "`editor`" + ` key of the nearest
   ` + "`_blueprint.yaml`" + ` of its collection, else from its own ` + "`$editor`" + ` key.
4. Values may pull in other files with custom tags. Paths are relative to the
   project root:
   - ` + "`!import /path/file.yaml`" + ` or ` + "`!g.yaml /path/file.yaml?a.b`" + `: YAML content
   - ` + "`!g.string /path/file.txt`" + `: raw text
5. Partials in /views/partials/ declare their schema under ` + "`editor`" + ` in
   their own front matter.

## Assets

Upload images with the ` + "`upload_asset`" + ` tool. Files land in /static/uploads/
and are referenced by the returned ` + "`url`" + `.
`
