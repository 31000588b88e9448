package migrations

import (
	"context"

	"github.com/dshein-alt/ropds/pkg/models"
	"github.com/pkg/errors"
	"github.com/uptrace/bun"
)

// The FB2 genre vocabulary the scanner links by code. Codes are stable;
// display names come from genre_translations with English as the fallback.
var genreSections = []struct {
	id   int
	name string
}{
	{1, "Science Fiction & Fantasy"},
	{2, "Detectives & Thrillers"},
	{3, "Prose"},
	{4, "Romance"},
	{5, "Adventure"},
	{6, "Children's"},
	{7, "Poetry & Dramaturgy"},
	{8, "Science & Education"},
	{9, "Computers & Internet"},
	{10, "Other"},
}

var seedGenres = []struct {
	code      string
	sectionID int
	name      string
}{
	{"sf", 1, "Science Fiction"},
	{"sf_fantasy", 1, "Fantasy"},
	{"sf_action", 1, "Action SF"},
	{"sf_space", 1, "Space SF"},
	{"sf_social", 1, "Social SF"},
	{"sf_horror", 1, "Horror & Mystic"},
	{"sf_humor", 1, "Humorous SF"},
	{"det_classic", 2, "Classical Detective"},
	{"det_police", 2, "Police Stories"},
	{"det_action", 2, "Action"},
	{"det_irony", 2, "Ironical Detective"},
	{"det_history", 2, "Historical Detective"},
	{"thriller", 2, "Thriller"},
	{"detective", 2, "Detective"},
	{"prose_classic", 3, "Classical Prose"},
	{"prose_history", 3, "Historical Prose"},
	{"prose_contemporary", 3, "Contemporary Prose"},
	{"prose_counter", 3, "Counterculture"},
	{"prose_rus_classic", 3, "Russian Classical Prose"},
	{"prose_su_classics", 3, "Soviet Classical Prose"},
	{"humor_prose", 3, "Humorous Prose"},
	{"love_contemporary", 4, "Contemporary Romance"},
	{"love_history", 4, "Historical Romance"},
	{"love_detective", 4, "Detective Romance"},
	{"love_short", 4, "Short Romance"},
	{"adv_western", 5, "Western"},
	{"adv_history", 5, "Historical Adventures"},
	{"adv_maritime", 5, "Maritime Fiction"},
	{"adventure", 5, "Adventures"},
	{"child_tale", 6, "Fairy Tales"},
	{"child_verse", 6, "Verses for Kids"},
	{"child_prose", 6, "Prose for Kids"},
	{"child_sf", 6, "SF for Kids"},
	{"children", 6, "Children's"},
	{"poetry", 7, "Poetry"},
	{"dramaturgy", 7, "Dramaturgy"},
	{"sci_history", 8, "History"},
	{"sci_psychology", 8, "Psychology"},
	{"sci_culture", 8, "Cultural Science"},
	{"sci_philosophy", 8, "Philosophy"},
	{"science", 8, "Science"},
	{"comp_www", 9, "Internet"},
	{"comp_programming", 9, "Programming"},
	{"comp_hard", 9, "Hardware"},
	{"comp_soft", 9, "Software"},
	{"ref_encyc", 10, "Encyclopedias"},
	{"ref_dict", 10, "Dictionaries"},
	{"nonfiction", 10, "Nonfiction"},
	{"religion", 10, "Religion"},
	{"unknown", 10, "Unknown"},
}

func init() {
	up := func(ctx context.Context, db *bun.DB) error {
		for _, section := range genreSections {
			translation := &models.GenreSectionTranslation{
				SectionID: section.id,
				Lang:      "en",
				Name:      section.name,
			}
			_, err := db.NewInsert().Model(translation).Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		for _, g := range seedGenres {
			genre := &models.Genre{
				Code:       g.code,
				SectionID:  g.sectionID,
				Subsection: g.name,
			}
			for _, section := range genreSections {
				if section.id == g.sectionID {
					genre.Section = section.name
				}
			}
			_, err := db.NewInsert().Model(genre).Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}

			translation := &models.GenreTranslation{
				GenreID: genre.ID,
				Lang:    "en",
				Name:    g.name,
			}
			_, err = db.NewInsert().Model(translation).Exec(ctx)
			if err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	}

	down := func(ctx context.Context, db *bun.DB) error {
		for _, table := range []string{"genre_translations", "genre_section_translations", "genres"} {
			_, err := db.Exec("DELETE FROM " + table)
			if err != nil {
				return errors.WithStack(err)
			}
		}
		return nil
	}

	Migrations.MustRegister(up, down)
}
