package core

type Button uint16

const (
	BUTTON_LEFT Button = iota
	BUTTON_RIGHT
	BUTTON_MIDDLE
	BUTTON_MAX_BUTTONS
)

// Key code definitions
type KeyCode uint16

const (
	KEY_ENTER    KeyCode = 0x0D
	KEY_TAB      KeyCode = 0x09
	KEY_SHIFT    KeyCode = 0x10
	KEY_ESCAPE   KeyCode = 0x1B
	KEY_SPACE    KeyCode = 0x20
	KEY_LEFT     KeyCode = 0x25
	KEY_UP       KeyCode = 0x26
	KEY_RIGHT    KeyCode = 0x27
	KEY_DOWN     KeyCode = 0x28
	KEY_A        KeyCode = 0x41
	KEY_D        KeyCode = 0x44
	KEY_E        KeyCode = 0x45
	KEY_Q        KeyCode = 0x51
	KEY_R        KeyCode = 0x52
	KEY_S        KeyCode = 0x53
	KEY_W        KeyCode = 0x57
	KEY_X        KeyCode = 0x58
	KEY_LSHIFT   KeyCode = 0xA0
	KEY_LCONTROL KeyCode = 0xA2

	KEYS_MAX_KEYS KeyCode = 0xFF
)

// Mouse state structure
type MouseState struct {
	X       int32
	Y       int32
	Buttons [BUTTON_MAX_BUTTONS]bool
}

// Keyboard state structure
type KeyboardState struct {
	Keys [256]bool
}

// InputState holds current and previous states for keyboard and mouse.
// Changes are reported through the event system.
type InputState struct {
	KeyboardCurrent  KeyboardState
	KeyboardPrevious KeyboardState
	MouseCurrent     MouseState
	MousePrevious    MouseState

	events *EventSystem
}

func NewInputState(events *EventSystem) *InputState {
	return &InputState{events: events}
}

// Update copies current states to previous states. Called once per frame.
func (is *InputState) Update() {
	is.KeyboardPrevious = is.KeyboardCurrent
	is.MousePrevious = is.MouseCurrent
}

func (is *InputState) IsKeyDown(key KeyCode) bool {
	return is.KeyboardCurrent.Keys[uint8(key)]
}

func (is *InputState) IsKeyUp(key KeyCode) bool {
	return !is.KeyboardCurrent.Keys[uint8(key)]
}

func (is *InputState) WasKeyDown(key KeyCode) bool {
	return is.KeyboardPrevious.Keys[uint8(key)]
}

func (is *InputState) ProcessKey(key KeyCode, pressed bool) {
	// Only handle this if the state actually changed.
	if is.KeyboardCurrent.Keys[uint8(key)] == pressed {
		return
	}
	is.KeyboardCurrent.Keys[uint8(key)] = pressed

	code := EVENT_CODE_KEY_RELEASED
	if pressed {
		code = EVENT_CODE_KEY_PRESSED
	}
	is.post(EventContext{Type: code, Data: &KeyEvent{KeyCode: key}})
}

func (is *InputState) IsButtonDown(button Button) bool {
	return is.MouseCurrent.Buttons[button]
}

func (is *InputState) ProcessButton(button Button, pressed bool) {
	if button >= BUTTON_MAX_BUTTONS || is.MouseCurrent.Buttons[button] == pressed {
		return
	}
	is.MouseCurrent.Buttons[button] = pressed

	code := EVENT_CODE_BUTTON_RELEASED
	if pressed {
		code = EVENT_CODE_BUTTON_PRESSED
	}
	is.post(EventContext{Type: code, Data: &MouseEvent{Button: button, X: is.MouseCurrent.X, Y: is.MouseCurrent.Y}})
}

func (is *InputState) ProcessMouseMove(x, y int32) {
	if is.MouseCurrent.X == x && is.MouseCurrent.Y == y {
		return
	}
	is.MouseCurrent.X = x
	is.MouseCurrent.Y = y
	is.post(EventContext{Type: EVENT_CODE_MOUSE_MOVED, Data: &MouseEvent{X: x, Y: y}})
}

func (is *InputState) ProcessMouseWheel(zDelta int8) {
	is.post(EventContext{Type: EVENT_CODE_MOUSE_WHEEL, Data: &MouseEvent{Z: zDelta}})
}

// MouseDelta returns how far the mouse moved since the last Update.
func (is *InputState) MouseDelta() (int32, int32) {
	return is.MouseCurrent.X - is.MousePrevious.X, is.MouseCurrent.Y - is.MousePrevious.Y
}

func (is *InputState) post(context EventContext) {
	if is.events == nil {
		return
	}
	_ = is.events.Post(context)
}
