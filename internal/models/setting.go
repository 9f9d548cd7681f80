package models

// Setting keys the gateway reads.
const (
	SettingTelegramBotToken = "telegram_bot_token"
	SettingTelegramChatID   = "telegram_chat_id"
	SettingContactHandle    = "contact_telegram"
)

// Setting is one key/value row of operator configuration
type Setting struct {
	Key   string `gorm:"column:setting_key;primaryKey;type:varchar(100)" json:"key"`
	Value string `gorm:"column:setting_value;type:text" json:"value"`
}

func (Setting) TableName() string { return "settings" }
