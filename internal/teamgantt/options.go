package teamgantt

import "net/url"

// DefaultExportURL is the web app's PDF export endpoint.
const DefaultExportURL = "https://prod.teamgantt.com/gantt/export/pdf/"

// ExportOptions are the rendering options sent with every PDF export.
type ExportOptions struct {
	PageSize             string `yaml:"page_size"`
	Color                string `yaml:"color"`
	Orientation          string `yaml:"orientation"`                 // "l" landscape, "p" portrait
	IncludeBlankDates    bool   `yaml:"include_blank_dates"`
	ShowEstimatedHours   bool   `yaml:"show_estimated_hours_column"` // also hides actual hours
	ShowPercentColumn    bool   `yaml:"show_percent_column"`
	DisplayResources     bool   `yaml:"display_resources"`
	DisplayDependencies  bool   `yaml:"display_dependencies"`
	DisplayNameInBars    bool   `yaml:"display_name_in_bars"`
	ShowNameNextToBar    bool   `yaml:"show_name_next_to_bar"`
	DateFormat           string `yaml:"date_format"`
	FontFace             string `yaml:"pdf_font_face"`
	FontSize             string `yaml:"pdf_font_size"`
	TaskList             string `yaml:"task_list"`                   // task details width
	ShowProjectNameOnBar bool   `yaml:"show_project_name_on_bar"`
}

func DefaultExportOptions() ExportOptions {
	return ExportOptions{
		PageSize:             "A4",
		Color:                "default",
		Orientation:          "l",
		IncludeBlankDates:    true,
		ShowEstimatedHours:   false,
		ShowPercentColumn:    true,
		DisplayResources:     false,
		DisplayDependencies:  false,
		DisplayNameInBars:    false,
		ShowNameNextToBar:    true,
		DateFormat:           "d/m/Y",
		FontFace:             "dejavusans",
		FontSize:             "8",
		TaskList:             "large",
		ShowProjectNameOnBar: true,
	}
}

// Values encodes the options as export query parameters.
func (o ExportOptions) Values() url.Values {
	v := url.Values{}
	v.Set("page_size", o.PageSize)
	v.Set("color", o.Color)
	v.Set("orientation", o.Orientation)
	v.Set("include_blank_dates", boolParam(o.IncludeBlankDates))
	v.Set("show_estimated_hours_column", boolParam(o.ShowEstimatedHours))
	v.Set("show_percent_column", boolParam(o.ShowPercentColumn))
	v.Set("display_resources", boolParam(o.DisplayResources))
	v.Set("display_dependencies", boolParam(o.DisplayDependencies))
	v.Set("display_name_in_bars", boolParam(o.DisplayNameInBars))
	v.Set("show_name_next_to_bar", boolParam(o.ShowNameNextToBar))
	v.Set("date_format", o.DateFormat)
	v.Set("pdf_font_face", o.FontFace)
	v.Set("pdf_font_size", o.FontSize)
	v.Set("task_list", o.TaskList)
	v.Set("show_project_name_on_bar", boolParam(o.ShowProjectNameOnBar))
	return v
}

func boolParam(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
