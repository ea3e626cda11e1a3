package catalog

import "edupanel/internal/models"

// DefaultAvatarKey is the blob key of the placeholder bound to staff photo
// fields. Its public path follows the configured upload prefix.
const DefaultAvatarKey = "defaults/avatar.png"

func text(name string, required bool, maxLength int) FieldSpec {
	return FieldSpec{Name: name, Kind: KindText, Required: required, MaxLength: maxLength}
}

func richText(name string, required bool) FieldSpec {
	return FieldSpec{Name: name, Kind: KindRichText, Required: required}
}

func field(name string, kind FieldKind, required bool) FieldSpec {
	return FieldSpec{Name: name, Kind: kind, Required: required}
}

func file(name, subdir string, required bool) AttachmentField {
	return AttachmentField{Name: name, Required: required, Profile: models.UploadProfileGeneral, Subdir: subdir}
}

func photo(name, subdir string) AttachmentField {
	return AttachmentField{Name: name, Profile: models.UploadProfilePhoto, Subdir: subdir, Default: DefaultAvatarKey}
}

// DefaultResources returns the built-in resource schemas.
func DefaultResources() []Resource {
	return []Resource{
		{
			Name:        "banners",
			UniqueField: "title",
			Fields:      []FieldSpec{text("title", true, 200), text("link", false, 500)},
			Attachments: []AttachmentField{file("image", "banners", true)},
		},
		{
			Name:        "blogs",
			UniqueField: "title",
			Fields: []FieldSpec{
				text("title", true, 200),
				richText("body", true),
				text("author", false, 120),
				field("publishedAt", KindDate, false),
			},
			Attachments: []AttachmentField{file("thumbnail", "blogs", false)},
		},
		{
			Name:        "documents",
			UniqueField: "title",
			Fields:      []FieldSpec{text("title", true, 200), text("description", false, 2000)},
			Attachments: []AttachmentField{file("attachment", "documents", true)},
		},
		{
			Name:        "circulars",
			Fields:      []FieldSpec{text("title", true, 200), field("date", KindDate, false)},
			Attachments: []AttachmentField{file("attachment", "circulars", false)},
		},
		{
			Name: "notices",
			Fields: []FieldSpec{
				text("title", true, 200),
				richText("body", false),
				field("publishedAt", KindDate, false),
				field("pinned", KindBool, false),
			},
			Attachments: []AttachmentField{file("attachment", "notices", false)},
		},
		{
			Name: "teachers",
			Fields: []FieldSpec{
				text("name", true, 120),
				text("designation", true, 120),
				text("subject", false, 120),
				text("phone", false, 32),
				text("email", false, 200),
				field("joinedAt", KindDate, false),
			},
			Attachments: []AttachmentField{photo("photo", "teacher-photos")},
		},
		{
			Name:        "headmasters",
			UniqueField: "name",
			Fields:      []FieldSpec{text("name", true, 120), richText("speech", false)},
			Attachments: []AttachmentField{photo("photo", "headmaster-photos")},
		},
		{
			Name:        "workers",
			Fields:      []FieldSpec{text("name", true, 120), text("designation", false, 120), text("phone", false, 32)},
			Attachments: []AttachmentField{photo("photo", "worker-photos")},
		},
		{
			Name:        "managing-committee",
			Fields:      []FieldSpec{text("name", true, 120), text("designation", false, 120), text("phone", false, 32)},
			Attachments: []AttachmentField{photo("photo", "managing-committee")},
		},
		{
			Name:        "photos",
			Fields:      []FieldSpec{text("title", false, 200), text("album", false, 120)},
			Attachments: []AttachmentField{file("image", "gallery", true)},
		},
		{
			Name:   "sliders",
			Fields: []FieldSpec{text("title", true, 200), text("caption", false, 500)},
			Attachments: []AttachmentField{{
				Name:     "images",
				Required: true,
				Multiple: true,
				MaxFiles: 10,
				Profile:  models.UploadProfileGeneral,
				Subdir:   "sliders",
			}},
		},
		{
			Name:        "donation-projects",
			UniqueField: "title",
			Fields: []FieldSpec{
				text("title", true, 200),
				richText("description", false),
				field("goalAmount", KindInt, false),
			},
			Attachments: []AttachmentField{file("coverImage", "donation-projects", false)},
		},
		{
			Name: "speeches",
			Fields: []FieldSpec{
				text("speaker", true, 120),
				text("designation", false, 120),
				richText("body", true),
			},
			Attachments: []AttachmentField{photo("photo", "speeches")},
		},
		{
			Name: "certificates",
			Fields: []FieldSpec{
				text("studentName", true, 120),
				text("title", true, 200),
				field("issuedAt", KindDate, false),
			},
			Attachments: []AttachmentField{file("attachment", "certificates", true)},
		},
		{
			Name:        "results",
			UniqueField: "title",
			Fields: []FieldSpec{
				text("title", true, 200),
				text("className", false, 60),
				field("year", KindInt, false),
				field("publishedAt", KindDate, false),
			},
			Attachments: []AttachmentField{file("resultSheet", "results", true)},
		},
		{
			Name:        "exams",
			UniqueField: "title",
			Fields: []FieldSpec{
				text("title", true, 200),
				text("className", false, 60),
				field("startDate", KindDate, false),
				field("endDate", KindDate, false),
			},
		},
		{
			Name: "fees",
			Fields: []FieldSpec{
				text("className", true, 60),
				text("category", true, 120),
				field("amount", KindInt, true),
			},
		},
		{
			Name: "donations",
			Fields: []FieldSpec{
				text("donorName", true, 120),
				field("amount", KindInt, true),
				text("projectId", false, 64),
				field("receivedAt", KindDate, false),
				field("anonymous", KindBool, false),
			},
		},
	}
}
