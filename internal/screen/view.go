package screen

// CameraMode says what occupies the camera slot.
type CameraMode string

const (
	CameraLive        CameraMode = "live"
	CameraPlaceholder CameraMode = "placeholder"
)

// BodyKind says what occupies the result area.
type BodyKind string

const (
	BodySpinner     BodyKind = "spinner"
	BodyContactInfo BodyKind = "contact_info"
	BodyMessage     BodyKind = "message"
)

// Row is one rendered contact field.
type Row struct {
	Key    string   `json:"key"`
	Values []string `json:"values"`
}

// View is the render-ready projection of State.
type View struct {
	Camera     CameraMode `json:"camera"`
	CameraText string     `json:"camera_text,omitempty"`
	Body       BodyKind   `json:"body"`
	Rows       []Row      `json:"rows,omitempty"`
	Message    string     `json:"message,omitempty"`
}

// Derive computes the view for s. Processing wins over CardFound; the live
// camera needs both a back device and permission.
func Derive(s State) View {
	var v View
	if s.Camera.IsBack() && s.HasPermission {
		v.Camera = CameraLive
	} else {
		v.Camera = CameraPlaceholder
		v.CameraText = NoCameraText
	}

	switch {
	case s.Processing:
		v.Body = BodySpinner
	case s.CardFound:
		v.Body = BodyContactInfo
		v.Rows = make([]Row, 0, len(s.ContactInfo.Fields))
		for _, f := range s.ContactInfo.Fields {
			values := f.Values
			if len(values) == 0 {
				values = []string{UndefinedValue}
			}
			v.Rows = append(v.Rows, Row{Key: f.Key, Values: values})
		}
	default:
		v.Body = BodyMessage
		v.Message = s.StatusMessage
	}
	return v
}
