package mcpserver

// QuerySyntax describes the search query language accepted by the
// search_notes tool.
const QuerySyntax = `# Quire Search Query Syntax

A query is a list of whitespace-separated terms. Matching is case-insensitive
and covers both the note title and the visible text of its body.

## Terms

| Form            | Meaning                                              |
|-----------------|------------------------------------------------------|
| ` + "`word`" + `          | optional term; notes matching it rank higher         |
| ` + "`+word`" + `         | required term; notes without it are dropped          |
| ` + "`-word`" + `         | excluded term; notes containing it are dropped       |
| ` + "`\"two words\"`" + `   | exact phrase, matched as a plain substring           |

## Ranking

- An exact word hit scores more than a prefix hit, which scores more than a
  hit inside a longer word.
- Hits in the title count double.
- Notes with equal scores keep their recency order (newest first).

## Examples

- ` + "`groceries +milk`" + ` notes that contain "milk", ranked by "groceries"
- ` + "`\"weekly review\" -draft`" + ` the exact phrase, excluding drafts
`
