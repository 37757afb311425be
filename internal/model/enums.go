package model

type UserType string

const (
	UserTypeElder UserType = "elder"
	UserTypeYoung UserType = "young"
)

// Counterpart returns the user type a connection pairs this type with.
func (t UserType) Counterpart() UserType {
	if t == UserTypeElder {
		return UserTypeYoung
	}
	return UserTypeElder
}

func (t UserType) Valid() bool {
	return t == UserTypeElder || t == UserTypeYoung
}

type ActivityType string

const (
	ActivityCooking        ActivityType = "cooking"
	ActivityCrafts         ActivityType = "crafts"
	ActivityStories        ActivityType = "stories"
	ActivityMusic          ActivityType = "music"
	ActivityGames          ActivityType = "games"
	ActivityConversation   ActivityType = "conversation"
	ActivityTechnologyHelp ActivityType = "technology_help"
	ActivityReading        ActivityType = "reading"
	ActivityExercise       ActivityType = "exercise"
	ActivityOther          ActivityType = "other"
)

var activityTypes = map[ActivityType]bool{
	ActivityCooking: true, ActivityCrafts: true, ActivityStories: true,
	ActivityMusic: true, ActivityGames: true, ActivityConversation: true,
	ActivityTechnologyHelp: true, ActivityReading: true, ActivityExercise: true,
	ActivityOther: true,
}

func (a ActivityType) Valid() bool {
	return activityTypes[a]
}

type VideoQuality string

const (
	VideoQualityExcellent VideoQuality = "excellent"
	VideoQualityGood      VideoQuality = "good"
	VideoQualityFair      VideoQuality = "fair"
	VideoQualityPoor      VideoQuality = "poor"
)

func (q VideoQuality) Valid() bool {
	switch q {
	case VideoQualityExcellent, VideoQualityGood, VideoQualityFair, VideoQualityPoor:
		return true
	}
	return false
}

type InterestCategory string

const (
	InterestHobbies    InterestCategory = "HOBBIES"
	InterestCooking    InterestCategory = "COOKING"
	InterestCrafts     InterestCategory = "CRAFTS"
	InterestStories    InterestCategory = "STORIES"
	InterestMusic      InterestCategory = "MUSIC"
	InterestSports     InterestCategory = "SPORTS"
	InterestTechnology InterestCategory = "TECHNOLOGY"
	InterestCulture    InterestCategory = "CULTURE"
	InterestOther      InterestCategory = "OTHER"
)

func (c InterestCategory) Valid() bool {
	switch c {
	case InterestHobbies, InterestCooking, InterestCrafts, InterestStories, InterestMusic,
		InterestSports, InterestTechnology, InterestCulture, InterestOther:
		return true
	}
	return false
}
