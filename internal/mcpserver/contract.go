package mcpserver

// MarkupContract describes the description markup that LLM consumers
// should follow when creating or describing terms.
const MarkupContract = `# Lexicon Description Markup

A term description is plain text split into chunks by blank lines.
Each chunk becomes one block.

## Blocks

- **Paragraph**: any chunk that is not one of the blocks below.
- **Title**: a chunk of the form ` + "`##Heading##`" + ` (rendered as a level-3 heading).
- **Bullet list**: a line ` + "`##LIST##`" + `, one item per line, closed by ` + "`##END##`" + `.
- **ASCII art**: a line ` + "`##ASCII##`" + `, preformatted lines kept verbatim, closed by ` + "`##END##`" + `.

## Images

Inside a paragraph, ` + "`#img(\"file.png\")`" + ` or ` + "`#img(\"file.png\",\"Caption\")`" + ` shows an
image attached to the term. The caption defaults to the file name without
its extension. Attach images first with the ` + "`attach_asset`" + ` tool. A tag naming
a file that is not attached is left as plain text.

## Rules

1. Markers (` + "`##LIST##`, `##ASCII##`, `##END##`" + `) must be alone on their line.
2. Blank lines inside a list are ignored; list items are trimmed.
3. ASCII blocks are not escaped or reflowed.
4. Term names may not contain ` + "`/`" + ` or ` + "`\\`" + `, start with a dot, or have
   leading or trailing spaces.
5. Links between terms are mutual. Use ` + "`link_terms`" + ` instead of writing
   names into the description.
6. Changes stay in memory until ` + "`save_project`" + ` is called.

## Example

` + "```" + `
##Overview##

A small domesticated feline. See #img("cat.png","A tabby").

##LIST##
purrs
sleeps
##END##

##ASCII##
 /\_/\
( o.o )
##END##
` + "```" + `
`
