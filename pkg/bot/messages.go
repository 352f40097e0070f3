package bot

const lang = "en"

var messages = map[string]map[string]string{
	"en": {
		"welcome":          "Hi!\nI'm OXBO-BOT!",
		"welcome_hint":     "Please, type /register 'password' to register or /help to see all commands",
		"fallback":         "type /help to see all commands",
		"help_hint":        "Please, type /help to see all commands",
		"failure":          "Something went wrong, please try again later",
		"no_username":      "Please, set username first in the settings",
		"blocked":          "You are blocked",
		"not_registered":   "Not registered, please use /help",
		"not_admin":        "You are not admin",
		"not_approved":     "You have limited access until approved by admins",
		"bad_password":     "Wrong password",
		"registered":       "Welcome %s! You have been registered",
		"already_reg":      "You are already registered",
		"already_approved": "You are already approved",
		"unregistered":     "User %s removed",
		"unknown_user":     "User %s not registered",
		"usage":            "Please, type /%s %s",
		"request_sent":     "Your request has been sent to admins",
		"request_left":     "Your request has been sent to admins. Remaining requests: %d",
		"request_blocked":  "You have been blocked for too many requests",
		"request_approved": "You have been approved",
		"approved":         "User %s approved",
		"rejected":         "User %s blocked",
		"ignored":          "Ignored",
		"decided":          "User %s has already been handled",
		"bad_choice":       "Unknown choice",
		"blocked_user":     "User %s blocked",
		"removed":          "User %s removed",
		"not_removed":      "User %s is not registered",
		"users":            "Users:",
		"no_users":         "No users registered",
		"updates":          "Updates turned %s",
		"sent":             "Message delivered to %d users",
		"policy_current":   "Current %s: %s",
		"policy_set":       "Policy set to %s",
		"policy_bad":       "Wrong policy value. Possible values: %s",
		"quota_current":    "Current %s: %d",
		"quota_set":        "Max requests set to %d",
		"quota_bad":        "Wrong value. Please, type a number greater than zero",
		"bad_camera":       "Please, type /img [0-9] to see photos",
		"no_snapshot":      "No photo from camera %s yet",
		"camera_caption":   "Camera %s",
		"reading":          "Reading file...",
		"empty_file":       "File is empty",
		"info":             "Info about you:",
		"management":       "Management Commands:",
		"operations":       "Operations Commands:",
	},
}

func msg(key string) string {
	return messages[lang][key]
}
