package outline

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_MatchesCanonicalText(t *testing.T) {
	input := "# Summary\n\n## Guides\n\n* [Intro](intro)\n* [Advanced](advanced)\n"
	doc, err := Parse(input)
	require.NoError(t, err)
	assert.Equal(t, input, Generate(doc.Nodes))
}

func TestGenerate_DescriptionAndSubcategory(t *testing.T) {
	nodes := []*Node{{
		Kind:        KindCategory,
		Title:       "Politics",
		Slug:        "politics",
		Description: "Nations and their borders.",
		Depth:       2,
		Children: []*Node{
			{Kind: KindPage, Title: "Map", Slug: "map", Depth: 3, Children: []*Node{
				{Kind: KindPage, Title: "Pins", Slug: "pins", Depth: 4},
			}},
			{Kind: KindCategory, Title: "Treaties", Slug: "treaties", Depth: 3, Order: 1},
		},
	}}

	want := "# Summary\n\n## Politics\nNations and their borders.\n\n* [Map](map)\n  * [Pins](pins)\n\n### Treaties\n"
	assert.Equal(t, want, Generate(nodes))
}

func TestGenerate_Empty(t *testing.T) {
	assert.Equal(t, "# Summary\n", Generate(nil))
}

func TestRoundTrip(t *testing.T) {
	fixtures := map[string]string{
		"single category": "# Summary\n\n## Guides\n\n* [Intro](intro)\n* [Advanced](advanced)\n",
		"description and two pages": "# Summary\n\n## Guides\nHow to get started.\n\n* [Intro](intro)\n* [Advanced](advanced)\n",
		"deep nesting": `# Summary

## Portal
* [Home](home)
  * [News](news)
    * [Archive](archive)
  * [Events](events)

### Marketplace
Player shops and companies.
* [Shops](shops)

#### Companies
* [Registry](registry)

## Map
`,
		"hand written with noise": "# Wiki\n\nsome intro text\n## A\n   \n- [One](./one.md)\n      - [Two](two)\n## B\n### C\n",
		"skipped levels":          "## Top\n#### Deep\n* [X](x)\n### Mid\n* [Y](y)\n",
		"repeated affixes":        "## A\n* [X](a.md.md)\n* [Y](././b)\n* [Z](/./c.md/)\n",
	}

	for name, input := range fixtures {
		t.Run(name, func(t *testing.T) {
			first, err := Parse(input)
			require.NoError(t, err)

			text := Generate(first.Nodes)
			second, err := Parse(text)
			require.NoError(t, err)

			assert.True(t, Equal(first.Nodes, second.Nodes), "round trip changed the tree:\n%s", text)
			assert.Empty(t, second.Warnings)
			assert.Equal(t, text, Generate(second.Nodes))
		})
	}
}

func TestEqual_IgnoresIDs(t *testing.T) {
	a, err := Parse("## A\n* [X](x)\n")
	require.NoError(t, err)
	b, err := Parse("## A\n* [X](x)\n")
	require.NoError(t, err)
	assert.NotEqual(t, a.Nodes[0].ID, b.Nodes[0].ID)
	assert.True(t, Equal(a.Nodes, b.Nodes))

	b.Nodes[0].Children[0].Order = 3
	assert.False(t, Equal(a.Nodes, b.Nodes))
}

func TestValidate_DuplicateSlugs(t *testing.T) {
	doc, err := Parse("## A\n* [X](x)\n## B\n* [Also X](x)\n")
	require.NoError(t, err)

	err = Validate(doc.Nodes)
	var dup *DuplicateSlugError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, KindPage, dup.Kind)
	assert.Equal(t, "x", dup.Slug)
	assert.Equal(t, []int{2, 4}, dup.Lines)
	assert.Contains(t, dup.Error(), "lines 2, 4")
}

func TestValidate_DuplicateCategoryTitles(t *testing.T) {
	doc, err := Parse("## Shops\n### Shops\n")
	require.NoError(t, err)
	var dup *DuplicateSlugError
	require.ErrorAs(t, Validate(doc.Nodes), &dup)
	assert.Equal(t, KindCategory, dup.Kind)
}

func TestValidate_SameSlugDifferentKinds(t *testing.T) {
	doc, err := Parse("## Shops\n* [Shops](shops)\n")
	require.NoError(t, err)
	assert.NoError(t, Validate(doc.Nodes))
}

func TestCount(t *testing.T) {
	doc, err := Parse("## A\n* [X](x)\n  * [Y](y)\n### B\n")
	require.NoError(t, err)
	cats, pages := Count(doc.Nodes)
	assert.Equal(t, 2, cats)
	assert.Equal(t, 2, pages)
}
