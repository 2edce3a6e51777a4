package mcpserver

// SummaryFormatContract describes the SUMMARY.md outline grammar that LLM
// consumers must follow when calling apply_summary.
const SummaryFormatContract = `# CraftWiki SUMMARY.md Format

The wiki structure (categories and the pages inside them) is edited as a
single Markdown outline. Applying it creates, updates, reorders and hides
categories and pages to match. Page bodies are never changed by an apply.

## Structure

` + "```" + `markdown
# Summary

## Getting Started
Everything a new player needs.

* [Introduction](intro)
* [First Night](first-night)
  * [Shelters](first-night/shelters)

### Redstone
* [Basics](redstone/basics)

## Server Rules
* [Chat](chat)
` + "```" + `

## Rules

1. **The first line** is a level-1 heading (` + "`" + `# Summary` + "`" + `). Its text is ignored.
2. **Categories** are headings of level 2 to 6. A deeper heading nests under the
   closest shallower one. The category slug is derived from its title, so two
   categories with the same title under the same parent are rejected.
3. **Description:** the first plain line right after a category heading is its
   description. Other stray text is ignored with a warning.
4. **Pages** are list items ` + "`" + `* [Title](slug)` + "`" + ` (or ` + "`" + `-` + "`" + `) below a category.
   A page before any category heading is an error.
5. **Sub-pages** are indented by two spaces (or one tab) per level under their
   parent page. Over-indented items are flattened with a warning.
6. **Slugs** are the link targets. ` + "`" + `./` + "`" + ` prefixes and ` + "`" + `.md` + "`" + ` suffixes are
   stripped, slashes are allowed (` + "`" + `redstone/basics` + "`" + `). A slug may appear
   only once per kind in the whole outline.
7. **Order** follows the text. Within a category, pages are listed before
   sub-categories.
8. **Removal:** anything left out of the outline is hidden, not deleted.
   Listing it again makes it visible with its old content.
9. **New pages** get a placeholder body. Edit it with update_page.
10. **Clearing:** an empty body is refused so that a lost request cannot hide
    the whole wiki. To hide everything on purpose, send just ` + "`" + `# Summary` + "`" + `.

## Workflow

1. Call get_summary to read the current outline.
2. Edit the text, keeping existing slugs for existing pages.
3. Call apply_summary with the full edited text. Pass the checksum returned
   in step 1 as ` + "`" + `if_match` + "`" + ` to refuse the apply if someone else
   changed the outline in between (outcome ` + "`" + `conflict` + "`" + `).
4. Inspect the result: ` + "`" + `outcome` + "`" + ` is ` + "`" + `success` + "`" + `, ` + "`" + `invalid` + "`" + ` (nothing
   changed, see ` + "`" + `line` + "`" + ` and ` + "`" + `message` + "`" + `), ` + "`" + `partial` + "`" + ` (some rows failed,
   see ` + "`" + `errors` + "`" + `), ` + "`" + `conflict` + "`" + ` or ` + "`" + `error` + "`" + `.
`
