package protocol

// Действия событий мыши
const (
	MouseDown        = "down"
	MouseUp          = "up"
	MouseMove        = "move"
	MouseClick       = "click"
	MouseDoubleClick = "doubleclick"
)

// Кнопки мыши
const (
	ButtonLeft   = "left"
	ButtonRight  = "right"
	ButtonMiddle = "middle"
)

// Действия событий клавиатуры
const (
	KeyDown  = "down"
	KeyUp    = "up"
	KeyPress = "press"
)

// Действия событий касания
const (
	TouchStart = "start"
	TouchMove  = "move"
	TouchEnd   = "end"
)

// Modifiers состояние клавиш-модификаторов на момент события
type Modifiers struct {
	Ctrl  bool `json:"ctrl"`
	Alt   bool `json:"alt"`
	Shift bool `json:"shift"`
	Meta  bool `json:"meta"`
}

// MouseEvent событие мыши; координаты в пикселях целевого дисплея
type MouseEvent struct {
	Action    string    `json:"action"`
	Button    string    `json:"button,omitempty"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Modifiers Modifiers `json:"modifiers"`
}

// KeyboardEvent событие клавиатуры
type KeyboardEvent struct {
	Action    string    `json:"action"`
	Key       string    `json:"key"`
	KeyCode   int       `json:"key_code"`
	Repeat    bool      `json:"repeat,omitempty"`
	Modifiers Modifiers `json:"modifiers"`
}

// TouchPoint одна точка касания
type TouchPoint struct {
	ID int `json:"id"`
	X  int `json:"x"`
	Y  int `json:"y"`
}

// TouchEvent событие мультитач
type TouchEvent struct {
	Action  string       `json:"action"`
	Touches []TouchPoint `json:"touches"`
}

// WheelEvent событие прокрутки
type WheelEvent struct {
	DeltaX    float64   `json:"delta_x"`
	DeltaY    float64   `json:"delta_y"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Modifiers Modifiers `json:"modifiers"`
}
