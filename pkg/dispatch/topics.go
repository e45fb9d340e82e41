package dispatch

// TopicPrefix is carried by every topic name on the bus.
const TopicPrefix = "SIFIS:"

// Request topics handled by the bridge.
const (
	TopicPublishAlarms          = TopicPrefix + "Publish_Alarms_Request"
	TopicAUDManager             = TopicPrefix + "AUD_Manager_Request"
	TopicSpeechRecognition      = TopicPrefix + "Privacy_Aware_Speech_Recognition"
	TopicAudioAnomalyDetection  = TopicPrefix + "Privacy_Aware_Audio_Anomaly_Detection"
	TopicDeviceAnomalyDetection = TopicPrefix + "Privacy_Aware_Device_Anomaly_Detection"
	TopicParentalControl        = TopicPrefix + "Privacy_Aware_Parental_Control"
	TopicObjectRecognition      = TopicPrefix + "Privacy_Aware_Object_Recognition"
	TopicFaceRecognition        = TopicPrefix + "Privacy_Aware_Face_Recognition"
	TopicSpeakerVerification    = TopicPrefix + "Privacy_Aware_Speaker_Verification"
)

// Result topics. The bridge publishes the first three itself; the rest come back
// from the analytics services inside passthrough envelopes.
const (
	TopicNetspotControlResults       = TopicPrefix + "Netspot_Control_Results"
	TopicAUDManagerResults           = TopicPrefix + "AUD_Manager_Results"
	TopicAudioAnomalyDetectionResult = TopicPrefix + "Privacy_Aware_Audio_Anomaly_Detection_Results"
)

// SubscribedTopics is the fixed subscription set. Result topics are subscribed
// too, but have no handler and are ignored when they arrive.
var SubscribedTopics = []string{
	TopicSpeechRecognition,
	TopicParentalControl,
	TopicDeviceAnomalyDetection,
	TopicObjectRecognition,
	TopicFaceRecognition,
	TopicPublishAlarms,
	TopicAUDManager,
	TopicPrefix + "Privacy_Aware_Speech_Recognition_Results",
	TopicPrefix + "Privacy_Aware_Parental_Control_Results",
	TopicPrefix + "Privacy_Aware_Object_Recognition_Results",
	TopicPrefix + "Privacy_Aware_Object_Recognition_Frame_Results",
	TopicPrefix + "Privacy_Aware_Device_Anomaly_Detection_Results",
	TopicNetspotControlResults,
	TopicAUDManagerResults,
	TopicPrefix + "Object_Recognition",
	TopicPrefix + "Object_Recognition_Frame_Results",
	TopicPrefix + "Object_Recognition_Results",
	TopicSpeakerVerification,
	TopicAudioAnomalyDetection,
	TopicAudioAnomalyDetectionResult,
}

var subscribed = func() map[string]struct{} {
	m := make(map[string]struct{}, len(SubscribedTopics))
	for _, t := range SubscribedTopics {
		m[t] = struct{}{}
	}
	return m
}()

// IsSubscribed reports whether topic belongs to the subscription set.
func IsSubscribed(topic string) bool {
	_, ok := subscribed[topic]
	return ok
}
